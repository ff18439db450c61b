package source

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Kind selects the token producer behind a session.
type Kind int

const (
	KindDirect Kind = iota
	KindBridged
)

// ParseKind accepts "direct" and "bridged". "callback" is an alias of "bridged".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return KindDirect, nil
	case "bridged", "callback":
		return KindBridged, nil
	default:
		return 0, fmt.Errorf("unknown client kind %q (want direct or bridged)", s)
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindBridged {
		return "bridged"
	}
	return "direct"
}

// Selection 描述一次会话使用的生产者组合
type Selection struct {
	Kind  Kind
	Graph bool
}

// Label is the metrics label of the selection.
func (s Selection) Label() string {
	if s.Graph {
		return "graph+" + s.Kind.String()
	}
	return s.Kind.String()
}

// Resolve picks the producer for the selection.
func (s Selection) Resolve(direct, bridged Source, logger *zap.Logger) (Source, error) {
	src := direct
	if s.Kind == KindBridged {
		src = bridged
	}
	if src == nil {
		return nil, fmt.Errorf("%s source not configured", s.Kind)
	}
	if !s.Graph {
		return src, nil
	}
	return NewGraphSource(src, logger)
}
