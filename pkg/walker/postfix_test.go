package walker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testEnv(regs map[string]uint64, mem map[uint64]uint64) Env {
	return Env{
		Lookup: func(name string) (uint64, bool) {
			v, ok := regs[name]
			return v, ok
		},
		Memory: func(addr uint64) (uint64, bool) {
			v, ok := mem[addr]
			return v, ok
		},
	}
}

func TestEvaluate(t *testing.T) {
	env := testEnv(
		map[string]uint64{"$esp": 0x100, ".cfa": 0x200},
		map[uint64]uint64{0x1fc: 0xdeadbeef, 0x100: 0x42},
	)
	for _, tc := range []struct {
		expr string
		want uint64
	}{
		{"1 2 +", 3},
		{"10 3 -", 7},
		{"2 -3 *", ^uint64(5)},
		{"7 2 /", 3},
		{"7 2 %", 1},
		{"12 10 &", 8},
		{"12 3 |", 15},
		{"0x1237 16 @", 0x1230},
		{"$esp 4 +", 0x104},
		{"$esp ^", 0x42},
		{".cfa 4 - ^", 0xdeadbeef},
		{"-8", ^uint64(7)},
		{"0x10", 16},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr, env)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			// Same view, same result.
			again, err := Evaluate(tc.expr, env)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	env := testEnv(map[string]uint64{"$esp": 0x100}, nil)
	for _, tc := range []struct {
		expr string
		err  error
	}{
		{"+", ErrStackUnderflow},
		{"1 +", ErrStackUnderflow},
		{"^", ErrStackUnderflow},
		{"$eax", ErrUnknownVariable},
		{"$eax 4 +", ErrUnknownVariable},
		{"1 0 /", ErrDivideByZero},
		{"1 0 %", ErrDivideByZero},
		{"$esp ^", ErrMemoryRead},
		{"1 2", ErrUnbalanced},
		{"", ErrUnbalanced},
		{"1 2 =", ErrBadAssignment},
		// No duplicate operator; unknown words are variables.
		{"$esp dup +", ErrUnknownVariable},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Evaluate(tc.expr, env)
			require.ErrorIs(t, err, tc.err)
		})
	}

	_, err := Evaluate("0xzz 1 +", env)
	require.Error(t, err)
}

func TestExecute(t *testing.T) {
	env := testEnv(
		map[string]uint64{"$ebp": 0x1000, "$esp": 0x0f00},
		map[uint64]uint64{0x1000: 0x2000, 0x1004: 0xdead},
	)
	got, err := Execute("$T0 $ebp = $eip $T0 4 + ^ = $ebp $T0 ^ = $esp $T0 8 + =", env)
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{
		"$T0":  0x1000,
		"$eip": 0xdead,
		"$ebp": 0x2000,
		"$esp": 0x1008,
	}, got)
}

func TestExecuteReadsAssignedValues(t *testing.T) {
	env := testEnv(map[string]uint64{"$ebp": 1}, nil)
	got, err := Execute("$ebp 5 = $T0 $ebp 1 + =", env)
	require.NoError(t, err)
	require.Equal(t, uint64(6), got["$T0"])
}

func TestExecuteErrors(t *testing.T) {
	env := testEnv(map[string]uint64{"$ebp": 0x1000}, nil)

	_, err := Execute("$eip $ebp ^ =", env)
	require.ErrorIs(t, err, ErrMemoryRead)

	_, err = Execute("$eip $T1 =", env)
	require.ErrorIs(t, err, ErrUnknownVariable)

	_, err = Execute("$eip 4", env)
	require.ErrorIs(t, err, ErrUnbalanced)

	_, err = Execute("=", env)
	require.ErrorIs(t, err, ErrStackUnderflow)
}
