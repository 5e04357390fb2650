// Package redis disponibiliza o backend de contagem compartilhado entre processos.
//
// Cada (tier, key) vira um sorted set em "{prefix}{tier}:{key}", com score =
// timestamp em ms e membro único por requisição. A fase de leitura (prune,
// cardinalidade, membro mais antigo) roda como uma transação MULTI/EXEC; a
// gravação do admit sai em seguida, só quando a leitura decidiu permitir.
// Entre a leitura e a gravação, processos concorrentes podem admitir alguns
// poucos vencedores a mais: a contagem global é aproximada, não exata.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/knokvik/ratewarden/internal/core/domain"
	"github.com/knokvik/ratewarden/internal/core/ports"
)

const DefaultKeyPrefix = "ratewarden:"

type Storage struct {
	client *redis.Client
	prefix string
	// ownsClient indica se Close deve encerrar a conexão; quando o cliente
	// vem do chamador, o ciclo de vida é dele.
	ownsClient bool
}

var _ ports.Backend = (*Storage)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix)
	s.ownsClient = true
	return s, nil
}

// NewWithClient embrulha um cliente cujo ciclo de vida pertence ao chamador.
func NewWithClient(client *redis.Client, prefix string) *Storage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Storage{client: client, prefix: prefix}
}

func (s *Storage) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// Take executa prune + contagem + append condicional contra o sorted set.
// Erros de transporte embrulham domain.ErrBackendUnavailable e sobem para o
// chamador; mascará-los admitiria ou negaria tráfego falsamente.
func (s *Storage) Take(ctx context.Context, tier, key string, limit int64, nowMs int64, window time.Duration) (ports.Window, error) {
	redisKey := s.prefix + tier + ":" + key
	windowStart := nowMs - window.Milliseconds()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	cardCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.Window{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	win := ports.Window{Count: cardCmd.Val()}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		win.OldestMs = int64(oldest[0].Score)
	}

	if win.Count >= limit {
		return win, nil
	}

	// Membro único por requisição: dois admits no mesmo milissegundo não
	// podem colapsar em um só elemento do set.
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	write := s.client.TxPipeline()
	write.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
	// TTL de 2x a janela: o próprio store recolhe chaves abandonadas mesmo
	// que nenhuma requisição volte.
	write.Expire(ctx, redisKey, 2*window)
	if _, err := write.Exec(ctx); err != nil {
		return ports.Window{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	win.Admitted = true
	win.Count++
	if win.OldestMs == 0 {
		win.OldestMs = nowMs
	}
	return win, nil
}

// Reset descarta o histórico de uma chave.
func (s *Storage) Reset(ctx context.Context, tier, key string) error {
	if err := s.client.Del(ctx, s.prefix+tier+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}
