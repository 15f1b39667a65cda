package graph

import (
	"container/list"
	"fmt"
	"strings"
)

// processingQueue wraps a list-based queue for Kahn's algorithm processing.
// It holds nodes that are ready to be processed (in-degree zero).
type processingQueue struct {
	queue *list.List
}

func newProcessingQueue() *processingQueue {
	return &processingQueue{queue: list.New()}
}

func (pq *processingQueue) enqueue(node string) {
	pq.queue.PushBack(node)
}

func (pq *processingQueue) dequeue() (string, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(string), true
}

func (pq *processingQueue) isEmpty() bool {
	return pq.queue.Len() == 0
}

// calculateInDegrees computes the number of incoming edges for each node.
// This is the first step of Kahn's algorithm.
func (g *Graph) calculateInDegrees() map[string]int {
	inDegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		inDegree[name] = 0
	}
	for _, children := range g.children {
		for _, child := range children {
			inDegree[child]++
		}
	}
	return inDegree
}

// initializeQueue seeds the processing queue with all zero in-degree nodes.
// Seeding follows node insertion order so orderings are stable across runs.
func (g *Graph) initializeQueue(inDegree map[string]int) *processingQueue {
	pq := newProcessingQueue()
	for _, name := range g.order {
		if inDegree[name] == 0 {
			pq.enqueue(name)
		}
	}
	return pq
}

// CycleInfo contains information about incomplete processing due to cycles.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the graph
	ProcessedNodes    int      // Number of nodes successfully processed
	UnprocessedNodes  []string // Nodes blocked by or part of a cycle
	CycleParticipants []string // Nodes that are actually part of a cycle
	CyclePath         []string // Ordered path showing the cycle (e.g. [A, B, A])
}

// CycleError reports that the dependency graph contains a cycle, with
// detail about which types are involved and which are blocked by it.
type CycleError struct {
	Info *CycleInfo
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in dependency graph: %d of %d types could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}
	if len(e.Info.CycleParticipants) > 0 {
		msg += fmt.Sprintf("\nTypes in cycle: %s", strings.Join(e.Info.CycleParticipants, ", "))
	}
	if len(e.Info.UnprocessedNodes) > len(e.Info.CycleParticipants) {
		participant := make(map[string]bool, len(e.Info.CycleParticipants))
		for _, p := range e.Info.CycleParticipants {
			participant[p] = true
		}
		var blocked []string
		for _, u := range e.Info.UnprocessedNodes {
			if !participant[u] {
				blocked = append(blocked, u)
			}
		}
		if len(blocked) > 0 {
			msg += fmt.Sprintf("\nTypes blocked by cycle: %s", strings.Join(blocked, ", "))
		}
	}
	return msg
}

// detectIncompleteProcessing runs Kahn's algorithm and returns information
// about any nodes that could not be processed, or nil when the graph is
// acyclic.
func (g *Graph) detectIncompleteProcessing() *CycleInfo {
	inDegree := g.calculateInDegrees()
	queue := g.initializeQueue(inDegree)

	processed := make(map[string]bool)
	for !queue.isEmpty() {
		node, _ := queue.dequeue()
		processed[node] = true
		for _, child := range g.children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.enqueue(child)
			}
		}
	}

	if len(processed) == len(g.nodes) {
		return nil
	}

	var unprocessed []string
	for _, name := range g.order {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
		}
	}
	unprocessedSet := make(map[string]bool, len(unprocessed))
	for _, node := range unprocessed {
		unprocessedSet[node] = true
	}

	var participants []string
	for _, node := range unprocessed {
		if g.canReachSelf(node, unprocessedSet) {
			participants = append(participants, node)
		}
	}

	var cyclePath []string
	if len(participants) > 0 {
		cyclePath = g.findCyclePath(participants[0], unprocessedSet)
	}

	return &CycleInfo{
		TotalNodes:        len(g.nodes),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: participants,
		CyclePath:         cyclePath,
	}
}

// HasCycle reports whether the dependency graph contains a cycle.
func (g *Graph) HasCycle() bool {
	return g.detectIncompleteProcessing() != nil
}

// Validate checks the graph for cycles. Returns a *CycleError if the graph
// contains one, nil otherwise.
func (g *Graph) Validate() error {
	if info := g.detectIncompleteProcessing(); info != nil {
		return &CycleError{Info: info}
	}
	return nil
}

// findCyclePath finds the path that forms a cycle starting from the given
// node, restricted to allowedNodes. Returns the ordered node list with the
// start node at both ends, or nil if no cycle is reachable.
func (g *Graph) findCyclePath(start string, allowedNodes map[string]bool) []string {
	visited := make(map[string]bool)
	path := []string{start}
	if g.dfsFindPath(start, start, visited, allowedNodes, &path) {
		return path
	}
	return nil
}

func (g *Graph) dfsFindPath(current, target string, visited, allowedNodes map[string]bool, path *[]string) bool {
	for _, child := range g.children[current] {
		if !allowedNodes[child] {
			continue
		}
		if child == target {
			*path = append(*path, target)
			return true
		}
		if visited[child] {
			continue
		}
		visited[child] = true
		*path = append(*path, child)
		if g.dfsFindPath(child, target, visited, allowedNodes, path) {
			return true
		}
		*path = (*path)[:len(*path)-1]
	}
	return false
}

// canReachSelf checks whether a node can reach itself through the subgraph
// defined by allowedNodes.
func (g *Graph) canReachSelf(start string, allowedNodes map[string]bool) bool {
	visited := make(map[string]bool)
	return g.dfsCanReach(start, start, visited, allowedNodes, true)
}

func (g *Graph) dfsCanReach(current, target string, visited, allowedNodes map[string]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}
	if visited[current] || !allowedNodes[current] {
		return false
	}
	visited[current] = true
	for _, child := range g.children[current] {
		if g.dfsCanReach(child, target, visited, allowedNodes, false) {
			return true
		}
	}
	return false
}

// TopologicalSort returns the nodes in dependency order using Kahn's
// algorithm: every node's dependencies precede it. Returns a *CycleError
// if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := g.calculateInDegrees()
	queue := g.initializeQueue(inDegree)

	var result []string
	for !queue.isEmpty() {
		node, _ := queue.dequeue()
		result = append(result, node)
		for _, child := range g.children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.enqueue(child)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, &CycleError{Info: g.detectIncompleteProcessing()}
	}
	return result, nil
}

// TopologicalSortWithFallback returns the nodes in dependency order. When
// the graph contains a cycle, the orderable prefix is returned followed by
// the remaining nodes in insertion order, along with the cycle description.
// Callers that must not tolerate cycles should use TopologicalSort.
func (g *Graph) TopologicalSortWithFallback() ([]string, *CycleInfo) {
	inDegree := g.calculateInDegrees()
	queue := g.initializeQueue(inDegree)

	processed := make(map[string]bool, len(g.nodes))
	var result []string
	for !queue.isEmpty() {
		node, _ := queue.dequeue()
		result = append(result, node)
		processed[node] = true
		for _, child := range g.children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.enqueue(child)
			}
		}
	}

	if len(result) == len(g.nodes) {
		return result, nil
	}
	for _, name := range g.order {
		if !processed[name] {
			result = append(result, name)
		}
	}
	return result, g.detectIncompleteProcessing()
}
