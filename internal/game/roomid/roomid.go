package roomid

import (
	"math/rand"
	"sync"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength = 4
)

// Generator 产生 4 位大写字母/数字的房间号。唯一性由调用方
// 对照存活房间表重试保证（碰撞概率低但存在）。
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, idLength)
	for i := range b {
		b[i] = alphabet[g.rnd.Intn(len(alphabet))]
	}
	return string(b)
}
