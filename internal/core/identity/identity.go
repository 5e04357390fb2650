// Package identity deriva a chave estável que identifica o chamador.
//
// A cadeia de prioridade é: credencial bearer, header de usuário, endereço
// de rede. O valor bruto nunca vira chave: ele passa por SHA-256 para que
// segredos não fiquem retidos em memória nem no store compartilhado. O hash
// não recebe tag de origem; como apenas uma fonte é consultada por request,
// é a cadeia de prioridade (e não o digest) que evita confusão entre fontes.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/knokvik/ratewarden/internal/core/domain"
)

const bearerPrefix = "Bearer "

// Resolve devolve a chave de identidade e a fonte que a produziu.
// A função é total: o passo de rede sempre produz algum valor.
func Resolve(meta domain.RequestMetadata) (string, domain.IdentitySource) {
	if auth := strings.TrimSpace(meta.Authorization); auth != "" {
		return hashKey(strings.TrimPrefix(auth, bearerPrefix)), domain.SourceCredential
	}

	if userID := strings.TrimSpace(meta.UserID); userID != "" {
		return hashKey(userID), domain.SourceUserID
	}

	return hashKey(networkAddress(meta)), domain.SourceNetwork
}

func networkAddress(meta domain.RequestMetadata) string {
	if xff := strings.TrimSpace(meta.ForwardedFor); xff != "" {
		parts := strings.Split(xff, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(meta.RealIP); realIP != "" {
		return realIP
	}

	remote := strings.TrimSpace(meta.RemoteAddr)
	if remote == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
