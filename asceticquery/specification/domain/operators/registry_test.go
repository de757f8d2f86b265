package operators

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestExecBinary_Comparison(t *testing.T) {
	reg := NewDefaultRegistry()
	now := time.Now()

	cases := []struct {
		name     string
		left     any
		op       Operator
		right    any
		expected any
	}{
		{"int64 equal", int64(3), OperatorEqual, int64(3), true},
		{"int64 greater", int64(3), OperatorGreaterThan, int64(2), true},
		{"float lte", 1.5, OperatorLessThanOrEqual, 1.5, true},
		{"mixed numeric", int64(2), OperatorLessThan, 2.5, true},
		{"string not equal", "a", OperatorNotEqual, "b", true},
		{"time before", now, OperatorLessThan, now.Add(time.Second), true},
		{"bool equal", true, OperatorEqual, false, false},
		{"nil left", nil, OperatorEqual, int64(1), nil},
		{"nil right", int64(1), OperatorEqual, nil, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result, err := reg.ExecBinary(c.left, c.op, c.right)
			if err != nil {
				t.Fatalf("ExecBinary failed: %v", err)
			}
			if result != c.expected {
				t.Errorf("Expected %v, got %v", c.expected, result)
			}
		})
	}
}

func TestExecBinary_StringMatchIsCaseInsensitive(t *testing.T) {
	reg := NewDefaultRegistry()

	cases := []struct {
		op       Operator
		right    string
		expected bool
	}{
		{OperatorContain, "LIC", true},
		{OperatorDoesNotContain, "LIC", false},
		{OperatorStartWith, "al", true},
		{OperatorEndWith, "CE", true},
		{OperatorEndWith, "al", false},
	}
	for _, c := range cases {
		result, err := reg.ExecBinary("Alice", c.op, c.right)
		if err != nil {
			t.Fatalf("ExecBinary failed: %v", err)
		}
		if result != c.expected {
			t.Errorf("%s %q: expected %v, got %v", c.op, c.right, c.expected, result)
		}
	}
}

func TestExecBinary_UnsupportedTypes(t *testing.T) {
	reg := NewDefaultRegistry()

	_, err := reg.ExecBinary(true, OperatorGreaterThan, false)
	if err == nil {
		t.Fatal("Expected error for ordering bools")
	}
	_, err = reg.ExecBinary(int64(1), OperatorContain, "1")
	if err == nil {
		t.Fatal("Expected error for CONTAIN on numbers")
	}
}

func TestCompare(t *testing.T) {
	reg := NewDefaultRegistry()

	a := ulid.Make()
	time.Sleep(2 * time.Millisecond)
	b := ulid.Make()
	result, err := reg.Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result != -1 {
		t.Errorf("Expected -1, got %d", result)
	}

	u := uuid.New()
	result, err = reg.Compare(u, u)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result != 0 {
		t.Errorf("Expected 0, got %d", result)
	}

	result, err = reg.Compare("b", "a")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result != 1 {
		t.Errorf("Expected 1, got %d", result)
	}
}

func TestStrategyTable(t *testing.T) {
	table := NewStrategyTable[string]().
		Register(BackendDocument, OperatorEqual, "$eq").
		Register(BackendDocument, OperatorGreaterThan, "$gt").
		Register(BackendRelational, OperatorEqual, "=")

	h, ok := table.Lookup(BackendDocument, OperatorGreaterThan)
	if !ok || h != "$gt" {
		t.Errorf("Expected $gt handler, got %q (%v)", h, ok)
	}
	if table.Supports(BackendRelational, OperatorGreaterThan) {
		t.Error("Relational backend must not support GREATER_THAN")
	}
	ops := table.Operators(BackendDocument)
	if len(ops) != 2 || ops[0] != OperatorEqual {
		t.Errorf("Unexpected operators: %v", ops)
	}
	caps := table.Capabilities(BackendRelational)
	if caps.Backend() != BackendRelational || !caps.Supports(OperatorEqual) || caps.Supports(OperatorContain) {
		t.Error("Capabilities view disagrees with table")
	}
}

func TestParse(t *testing.T) {
	op, ok := Parse("greater_than")
	if !ok || op != OperatorGreaterThan {
		t.Errorf("Expected GREATER_THAN, got %q", op)
	}
	op, ok = Parse("PARENTHES")
	if !ok || op != OperatorGroup {
		t.Errorf("Expected group marker, got %q", op)
	}
	if _, ok := Parse("LIKE"); ok {
		t.Error("LIKE is not a wire token")
	}
}
