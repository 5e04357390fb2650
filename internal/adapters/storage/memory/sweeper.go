package memory

import (
	"context"
	"time"
)

// StartSweeper inicia a varredura periódica que limita a memória do backend
// local: a cada intervalo, remove timestamps expirados e apaga chaves que
// ficaram vazias. Pare cancelando o contexto. A varredura é só higiene;
// nenhuma decisão individual depende dela.
func (s *Storage) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.now().UnixMilli(), interval)
			}
		}
	}()
}

// Sweep faz uma passada única sobre todas as chaves. Cada chave é tratada
// sob sua própria seção crítica, para não estacionar o tráfego vivo durante
// uma varredura longa.
func (s *Storage) Sweep(nowMs int64, window time.Duration) {
	windowStart := nowMs - window.Milliseconds()

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	for _, k := range keys {
		s.sweepKey(k, windowStart)
	}
}

func (s *Storage) sweepKey(composite string, windowStart int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[composite]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(windowStart)
	if len(e.stamps) == 0 {
		e.gone = true
		delete(s.entries, composite)
	}
}
