// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// Window é o estado observado de uma janela deslizante após um Take.
type Window struct {
	// Admitted indica se o timestamp atual foi gravado.
	Admitted bool
	// Count é o total de requisições dentro da janela, já incluindo a
	// atual quando Admitted.
	Count int64
	// OldestMs é o timestamp (epoch ms) mais antigo ainda dentro da
	// janela, ou 0 quando a janela ficou vazia.
	OldestMs int64
}

// Backend mantém o histórico de timestamps por (tier, key).
//
// Take executa prune, contagem e append condicional como uma unidade
// atômica por chave: remove todo timestamp <= nowMs - window (intervalo
// semiaberto), conta os sobreviventes e, se a contagem for menor que o
// limite, grava nowMs. Implementações locais serializam por chave;
// implementações compartilhadas delegam a atomicidade ao store externo.
type Backend interface {
	Take(ctx context.Context, tier, key string, limit int64, nowMs int64, window time.Duration) (Window, error)
}
