package builtin

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"
)

// params wraps the string map a plan file attaches to an operation or check.
type params map[string]string

// only rejects keys outside allowed so that typos in plan files surface at
// load time.
func (p params) only(allowed ...string) error {
	var unknown []string
	for k := range p {
		if !slices.Contains(allowed, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown params %v (allowed: %v)", unknown, allowed)
}

func (p params) required(key string) (string, error) {
	v := p[key]
	if v == "" {
		return "", fmt.Errorf("param %q is required", key)
	}
	return v, nil
}

func (p params) integer(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %q: %q is not an integer", key, v)
	}
	return i, nil
}

func (p params) duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("param %q: %q is not a positive duration", key, v)
	}
	return d, nil
}

func (p params) boolean(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("param %q: %q is not a boolean", key, v)
	}
	return b, nil
}

func (p params) port(key string) (int, error) {
	if _, err := p.required(key); err != nil {
		return 0, err
	}
	port, err := p.integer(key, 0)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("param %q: %d is not a valid port", key, port)
	}
	return port, nil
}
