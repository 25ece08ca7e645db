package simulate

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
)

// Cached memoizes successful simulations. Finite-difference Jacobians and
// rejected solver steps revisit the same stacks, and external models are
// slow. Failed calls are not cached.
type Cached struct {
	next    Simulator
	cache   *lru.Cache[string, []float64]
	metrics *metrics.Metrics
}

// NewCached wraps next with an LRU cache of the given size.
func NewCached(next Simulator, size int, m *metrics.Metrics) (*Cached, error) {
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache, metrics: m}, nil
}

// Simulate implements Simulator.
func (c *Cached) Simulate(q []float64, s layer.Stack) ([]float64, error) {
	key := cacheKey(q, s)
	if curve, ok := c.cache.Get(key); ok {
		c.metrics.ObserveCache(true)
		return append([]float64(nil), curve...), nil
	}
	c.metrics.ObserveCache(false)

	curve, err := c.next.Simulate(q, s)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]float64(nil), curve...))
	return curve, nil
}

// Len returns the number of cached curves.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(q []float64, s layer.Stack) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range q {
		bits := math.Float64bits(v)
		for i := range buf {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf[:])
	}

	var b strings.Builder
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(len(q)))
	for i := 0; i < s.Len(); i++ {
		l := s.At(i)
		b.WriteByte('|')
		b.WriteString(l.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(l.Role)))
		for _, f := range layer.Fields {
			v := l.Get(f)
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(int(v.State)))
			b.WriteByte('=')
			b.WriteString(strconv.FormatUint(math.Float64bits(v.Num), 16))
		}
	}
	return b.String()
}
