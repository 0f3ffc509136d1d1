package scheduler

import (
	"context"
	"errors"
	"math"
	"time"
)

var errDeadline = errors.New("solve deadline exceeded")

const flowInf = math.MaxInt32

// flowNetwork is a min-cost circulation with lower bounds, solved by successive shortest
// paths (SPFA) on the usual super-source/super-sink reduction.
type flowNetwork struct {
	adj     [][]int
	to      []int
	cap     []int
	cost    []int64
	lower   []int
	upper   []int
	balance []int
	base    int64
}

func newFlowNetwork(nodes int) *flowNetwork {
	return &flowNetwork{adj: make([][]int, nodes), balance: make([]int, nodes)}
}

func (g *flowNetwork) addNode() int {
	g.adj = append(g.adj, nil)
	g.balance = append(g.balance, 0)
	return len(g.adj) - 1
}

// addEdge adds u->v carrying between lower and upper units; it returns the edge id.
func (g *flowNetwork) addEdge(u, v, lower, upper int, cost int64) int {
	id := len(g.to)
	g.to = append(g.to, v, u)
	g.cap = append(g.cap, upper-lower, 0)
	g.cost = append(g.cost, cost, -cost)
	g.lower = append(g.lower, lower, 0)
	g.upper = append(g.upper, upper, 0)
	g.adj[u] = append(g.adj[u], id)
	g.adj[v] = append(g.adj[v], id+1)
	if lower > 0 {
		g.balance[v] += lower
		g.balance[u] -= lower
		g.base += int64(lower) * cost
	}
	return id
}

// flow returns the units carried by a forward edge after solve.
func (g *flowNetwork) flow(id int) int {
	return g.lower[id] + (g.upper[id] - g.lower[id] - g.cap[id])
}

type flowStats struct {
	augmentations int64
	cost          int64
}

// solve looks for a feasible circulation of minimum cost. It returns false when the lower
// bounds cannot all be met, and errDeadline or the context error when interrupted.
func (g *flowNetwork) solve(ctx context.Context, deadline time.Time) (bool, flowStats, error) {
	var stats flowStats
	for id := range g.lower {
		if g.upper[id] < g.lower[id] {
			return false, stats, nil
		}
	}

	ss, tt := g.addNode(), g.addNode()
	need := 0
	for v, b := range g.balance[:ss] {
		switch {
		case b > 0:
			g.addEdge(ss, v, 0, b, 0)
			need += b
		case b < 0:
			g.addEdge(v, tt, 0, -b, 0)
		}
	}

	n := len(g.adj)
	dist := make([]int64, n)
	inQueue := make([]bool, n)
	prevEdge := make([]int, n)
	queue := make([]int, 0, n)
	sent := 0

	for sent < need {
		if err := checkBudget(ctx, deadline); err != nil {
			return false, stats, err
		}
		for i := range dist {
			dist[i] = math.MaxInt64
			prevEdge[i] = -1
		}
		dist[ss] = 0
		queue = append(queue[:0], ss)
		inQueue[ss] = true
		for head := 0; head < len(queue); head++ {
			u := queue[head]
			inQueue[u] = false
			for _, e := range g.adj[u] {
				if g.cap[e] == 0 {
					continue
				}
				v := g.to[e]
				if nd := dist[u] + g.cost[e]; nd < dist[v] {
					dist[v] = nd
					prevEdge[v] = e
					if !inQueue[v] {
						inQueue[v] = true
						queue = append(queue, v)
					}
				}
			}
		}
		if dist[tt] == math.MaxInt64 {
			break
		}

		push := need - sent
		for v := tt; v != ss; v = g.to[prevEdge[v]^1] {
			push = min(push, g.cap[prevEdge[v]])
		}
		for v := tt; v != ss; v = g.to[prevEdge[v]^1] {
			e := prevEdge[v]
			g.cap[e] -= push
			g.cap[e^1] += push
		}
		sent += push
		stats.cost += int64(push) * dist[tt]
		stats.augmentations++
	}
	stats.cost += g.base
	return sent == need, stats, nil
}

func checkBudget(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return errDeadline
	}
	return nil
}
