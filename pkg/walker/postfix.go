package walker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrStackUnderflow  = errors.New("not enough operands")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrDivideByZero    = errors.New("division by zero")
	ErrMemoryRead      = errors.New("memory read failed")
	ErrBadAssignment   = errors.New("assignment target is not a variable")
	ErrUnbalanced      = errors.New("unbalanced expression")
)

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenVariable
	tokenBinaryOp
	tokenDeref
	tokenAssign
)

type token struct {
	kind  tokenKind
	value uint64
	name  string
	op    byte
}

// tokenize splits a postfix program into tagged tokens. Anything that is not
// a literal or an operator is a variable reference: registers ("$esp", "x29"),
// pseudo registers (".cfa") and program temporaries ("$T0").
func tokenize(expr string) ([]token, error) {
	fields := strings.Fields(expr)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		if len(f) == 1 {
			switch f[0] {
			case '+', '-', '*', '/', '%', '&', '|', '@':
				tokens = append(tokens, token{kind: tokenBinaryOp, op: f[0]})
				continue
			case '^':
				tokens = append(tokens, token{kind: tokenDeref})
				continue
			case '=':
				tokens = append(tokens, token{kind: tokenAssign})
				continue
			}
		}
		if isLiteral(f) {
			v, err := parseLiteral(f)
			if err != nil {
				return nil, fmt.Errorf("bad literal %q: %w", f, err)
			}
			tokens = append(tokens, token{kind: tokenLiteral, value: v})
			continue
		}
		tokens = append(tokens, token{kind: tokenVariable, name: f})
	}
	return tokens, nil
}

func isLiteral(s string) bool {
	if s[0] == '-' && len(s) > 1 {
		s = s[1:]
	}
	return s[0] >= '0' && s[0] <= '9'
}

func parseLiteral(s string) (uint64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	var (
		v   uint64
		err error
	)
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		v, err = strconv.ParseUint(hex, 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}

// Env gives a program access to the outside world.
type Env struct {
	// Lookup resolves a variable that the program has not assigned itself.
	Lookup func(name string) (uint64, bool)
	// Memory reads a pointer sized value.
	Memory func(addr uint64) (uint64, bool)
}

// operand is a value or a not yet resolved variable name. Names are resolved
// lazily so that they can also serve as assignment targets.
type operand struct {
	name  string
	value uint64
}

type machine struct {
	env      Env
	stack    []operand
	assigned map[string]uint64
}

func (m *machine) push(op operand) {
	m.stack = append(m.stack, op)
}

func (m *machine) pop() (operand, error) {
	if len(m.stack) == 0 {
		return operand{}, ErrStackUnderflow
	}
	op := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return op, nil
}

func (m *machine) popValue() (uint64, error) {
	op, err := m.pop()
	if err != nil {
		return 0, err
	}
	return m.resolve(op)
}

func (m *machine) resolve(op operand) (uint64, error) {
	if op.name == "" {
		return op.value, nil
	}
	if v, ok := m.assigned[op.name]; ok {
		return v, nil
	}
	if m.env.Lookup != nil {
		if v, ok := m.env.Lookup(op.name); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, op.name)
}

func (m *machine) run(tokens []token) error {
	for _, t := range tokens {
		switch t.kind {
		case tokenLiteral:
			m.push(operand{value: t.value})
		case tokenVariable:
			m.push(operand{name: t.name})
		case tokenBinaryOp:
			b, err := m.popValue()
			if err != nil {
				return err
			}
			a, err := m.popValue()
			if err != nil {
				return err
			}
			v, err := binaryOp(t.op, a, b)
			if err != nil {
				return err
			}
			m.push(operand{value: v})
		case tokenDeref:
			addr, err := m.popValue()
			if err != nil {
				return err
			}
			if m.env.Memory == nil {
				return fmt.Errorf("%w: %#x", ErrMemoryRead, addr)
			}
			v, ok := m.env.Memory(addr)
			if !ok {
				return fmt.Errorf("%w: %#x", ErrMemoryRead, addr)
			}
			m.push(operand{value: v})
		case tokenAssign:
			v, err := m.popValue()
			if err != nil {
				return err
			}
			target, err := m.pop()
			if err != nil {
				return err
			}
			if target.name == "" {
				return ErrBadAssignment
			}
			m.assigned[target.name] = v
		}
	}
	return nil
}

func binaryOp(op byte, a, b uint64) (uint64, error) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case '%':
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	case '&':
		return a & b, nil
	case '|':
		return a | b, nil
	case '@':
		// Align a down to b, which must be a power of two.
		return a & -b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

// Evaluate runs a postfix expression that must leave exactly one value on
// the stack, such as the right hand side of a STACK CFI rule.
func Evaluate(expr string, env Env) (uint64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	m := &machine{env: env, assigned: map[string]uint64{}}
	if err := m.run(tokens); err != nil {
		return 0, err
	}
	if len(m.stack) != 1 {
		return 0, ErrUnbalanced
	}
	return m.popValue()
}

// Execute runs a postfix program made of assignments, such as a STACK WIN
// program string, and returns every variable it assigned. Variables the
// program assigned shadow Env.Lookup for the rest of the program.
func Execute(program string, env Env) (map[string]uint64, error) {
	tokens, err := tokenize(program)
	if err != nil {
		return nil, err
	}
	m := &machine{env: env, assigned: map[string]uint64{}}
	if err := m.run(tokens); err != nil {
		return nil, err
	}
	if len(m.stack) != 0 {
		return nil, ErrUnbalanced
	}
	return m.assigned, nil
}
