// Package memory disponibiliza o backend de contagem em processo.
//
// O estado é um mapa de (tier, key) para a sequência de timestamps ainda
// dentro da janela, com lock por entrada para que chaves independentes não
// se serializem entre si. A memória só é limitada pelo sweeper: entre
// varreduras, chaves totalmente expiradas continuam ocupando uma entrada
// vazia.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/knokvik/ratewarden/internal/core/ports"
)

type entry struct {
	mu     sync.Mutex
	stamps []int64
	// gone marca entradas removidas do mapa pelo sweeper; quem segurava o
	// ponteiro precisa buscar (ou recriar) a entrada de novo.
	gone bool
}

// Storage implementa ports.Backend em memória, para um único processo.
type Storage struct {
	mu      sync.RWMutex
	entries map[string]*entry

	now func() time.Time
}

var _ ports.Backend = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Take executa prune, contagem e append condicional sob o lock da entrada.
func (s *Storage) Take(_ context.Context, tier, key string, limit int64, nowMs int64, window time.Duration) (ports.Window, error) {
	composite := compositeKey(tier, key)
	windowStart := nowMs - window.Milliseconds()

	for {
		e := s.lookup(composite)

		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}

		e.prune(windowStart)

		win := ports.Window{Count: int64(len(e.stamps))}
		if win.Count < limit {
			e.stamps = append(e.stamps, nowMs)
			win.Admitted = true
			win.Count++
		}
		if len(e.stamps) > 0 {
			win.OldestMs = e.stamps[0]
		}
		e.mu.Unlock()

		return win, nil
	}
}

// Reset descarta o histórico de uma chave.
func (s *Storage) Reset(tier, key string) {
	composite := compositeKey(tier, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[composite]; ok {
		e.mu.Lock()
		e.gone = true
		e.mu.Unlock()
		delete(s.entries, composite)
	}
}

// Len reporta quantas chaves o mapa ainda retém, expiradas ou não.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Storage) lookup(composite string) *entry {
	s.mu.RLock()
	e, ok := s.entries[composite]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[composite]; ok {
		return e
	}
	e = &entry{}
	s.entries[composite] = e
	return e
}

// prune descarta timestamps <= windowStart. Intervalo semiaberto: um
// timestamp exatamente igual a windowStart já expirou.
func (e *entry) prune(windowStart int64) {
	idx := 0
	for idx < len(e.stamps) && e.stamps[idx] <= windowStart {
		idx++
	}
	if idx == 0 {
		return
	}
	e.stamps = append(e.stamps[:0], e.stamps[idx:]...)
}

func compositeKey(tier, key string) string {
	return tier + ":" + key
}
