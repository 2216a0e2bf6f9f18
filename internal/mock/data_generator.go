package mock

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Token prefixes per scanner profile
var tokenPrefixes = map[string]string{
	"volunteer": "STU",
	"stall":     "STALL",
}

// PayloadGenerator produces QR payloads the way a queue of people presents
// them: mostly new codes, sometimes the same code held in frame again.
type PayloadGenerator struct {
	mu      sync.Mutex
	rand    *rand.Rand
	prefix  string
	script  []string
	next    int
	last    string
	repeatP float32
}

// NewPayloadGenerator creates a generator. A non-empty script is replayed
// in order, cycling; otherwise random tokens with the profile prefix are used.
func NewPayloadGenerator(profile string, script []string) *PayloadGenerator {
	prefix, ok := tokenPrefixes[profile]
	if !ok {
		prefix = "QR"
	}
	return &PayloadGenerator{
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prefix:  prefix,
		script:  script,
		repeatP: 0.3,
	}
}

// Next returns the next payload.
func (g *PayloadGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.script) > 0 {
		p := g.script[g.next%len(g.script)]
		g.next++
		g.last = p
		return p
	}

	if g.last != "" && g.weightedChoice([]bool{true, false}, []float32{g.repeatP, 1 - g.repeatP}) {
		return g.last
	}
	g.last = g.GenerateToken()
	return g.last
}

// GenerateToken generates a random token with the profile prefix
func (g *PayloadGenerator) GenerateToken() string {
	return fmt.Sprintf("%s-%04d-%06X", g.prefix, g.rand.Intn(10000), g.rand.Intn(1<<24))
}

func (g *PayloadGenerator) weightedChoice(choices []bool, weights []float32) bool {
	total := float32(0)
	for _, w := range weights {
		total += w
	}

	r := g.rand.Float32() * total
	cumulative := float32(0)

	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return choices[i]
		}
	}

	return choices[0]
}
