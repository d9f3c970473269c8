// Package fsm описывает допустимые переходы статусов.
package fsm

import "fmt"

// GuardResult результат проверки перехода
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Machine таблица переходов from -> {to}
type Machine struct {
	name        string
	transitions map[string]map[string]bool
	terminal    map[string]bool
}

// New строит машину; статусы без исходящих переходов считаются терминальными
func New(name string, transitions map[string][]string) *Machine {
	m := &Machine{
		name:        name,
		transitions: make(map[string]map[string]bool, len(transitions)),
		terminal:    map[string]bool{},
	}
	for from, tos := range transitions {
		set := make(map[string]bool, len(tos))
		for _, to := range tos {
			set[to] = true
			if _, ok := transitions[to]; !ok {
				m.terminal[to] = true
			}
		}
		m.transitions[from] = set
		if len(tos) == 0 {
			m.terminal[from] = true
		}
	}
	return m
}

func (m *Machine) Can(from, to string) GuardResult {
	if m.terminal[from] {
		return GuardResult{Reason: fmt.Sprintf("%s is already %s", m.name, from)}
	}
	next, ok := m.transitions[from]
	if !ok {
		return GuardResult{Reason: fmt.Sprintf("unknown %s status %q", m.name, from)}
	}
	if !next[to] {
		return GuardResult{Reason: fmt.Sprintf("cannot move %s from %s to %s", m.name, from, to)}
	}
	return GuardResult{Allowed: true}
}

// Sources статусы, из которых достижим to
func (m *Machine) Sources(to string) []string {
	var out []string
	for from, next := range m.transitions {
		if next[to] {
			out = append(out, from)
		}
	}
	return out
}

func (m *Machine) IsTerminal(status string) bool {
	return m.terminal[status]
}
