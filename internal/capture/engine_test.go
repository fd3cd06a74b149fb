// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"strings"
	"testing"

	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg"
	"github.com/GoogleCloudPlatform/cloud-debug-go/hostdbg/fakehost"
	"github.com/GoogleCloudPlatform/cloud-debug-go/internal/agentconfig"
)

func numberValue(n int) hostdbg.Value {
	return hostdbg.Value{Kind: hostdbg.KindNumber, Primitive: fmt.Sprintf("%d", n)}
}

func stringValue(s string) hostdbg.Value {
	return hostdbg.Value{Kind: hostdbg.KindString, Primitive: s}
}

func boolValue(b bool) hostdbg.Value {
	return hostdbg.Value{Kind: hostdbg.KindBoolean, Primitive: fmt.Sprintf("%v", b)}
}

func TestCaptureMaxPropertiesTruncation(t *testing.T) {
	host := fakehost.New(0)

	arrayHandle := "array-A"
	objectHandle := "object-B"

	host.SetProperties(arrayHandle, []hostdbg.Property{
		{Name: "0", Value: numberValue(1)},
		{Name: "1", Value: stringValue("hi")},
		{Name: "2", Value: boolValue(true)},
	})
	host.SetProperties(objectHandle, []hostdbg.Property{
		{Name: "x", Value: numberValue(1)},
	})

	frame := &fakehost.Frame{
		Function: "doWork",
		Loc:      hostdbg.Position{Filename: "fixtures/foo.js", Line: 2},
		LocalVars: []hostdbg.NamedValue{
			{Name: "n", Value: numberValue(2)},
			{Name: "A", Value: hostdbg.Value{Kind: hostdbg.KindArray, ClassName: "Array", Handle: arrayHandle}},
			{Name: "B", Value: hostdbg.Value{Kind: hostdbg.KindObject, ClassName: "Object", Handle: objectHandle}},
		},
	}

	limits := agentconfig.Capture{MaxFrames: 20, MaxExpandFrames: 5, MaxProperties: 1, MaxDataSize: 5120, MaxStringLength: 1024}
	engine := New(host)
	result := engine.Capture([]hostdbg.Frame{frame}, limits, nil, nil)

	if len(result.StackFrames) != 1 {
		t.Fatalf("len(StackFrames) = %d, want 1", len(result.StackFrames))
	}
	locals := result.StackFrames[0].Locals
	if len(locals) != 3 {
		t.Fatalf("len(Locals) = %d, want 3 (n, A, B)", len(locals))
	}

	avar := locals[1]
	if avar.Name != "A" || avar.VarTableIndex == nil {
		t.Fatalf("locals[1] = %+v, want named A with a VarTableIndex", avar)
	}

	members := result.VariableTable[*avar.VarTableIndex].Members
	if len(members) != 2 {
		t.Fatalf("A.Members = %d, want 2 (one element + truncation marker)", len(members))
	}
	if !strings.Contains(members[1].Name, "maxProperties=1") {
		t.Errorf("truncation marker = %q, want to contain maxProperties=1", members[1].Name)
	}
}

func TestCaptureBeyondMaxExpandFrames(t *testing.T) {
	host := fakehost.New(0)
	frames := []hostdbg.Frame{
		&fakehost.Frame{Function: "a", LocalVars: []hostdbg.NamedValue{{Name: "x", Value: numberValue(1)}}},
		&fakehost.Frame{Function: "b", LocalVars: []hostdbg.NamedValue{{Name: "y", Value: numberValue(2)}}},
	}

	limits := agentconfig.Capture{MaxFrames: 20, MaxExpandFrames: 1, MaxProperties: 10, MaxDataSize: 5120, MaxStringLength: 1024}
	engine := New(host)
	result := engine.Capture(frames, limits, nil, nil)

	if len(result.StackFrames[1].Locals) != 1 || result.StackFrames[1].Locals[0].Status == nil {
		t.Fatalf("frame[1].Locals = %+v, want a single status stub", result.StackFrames[1].Locals)
	}
}

func TestCaptureStringTruncation(t *testing.T) {
	host := fakehost.New(0)
	frame := &fakehost.Frame{
		Function:  "f",
		LocalVars: []hostdbg.NamedValue{{Name: "s", Value: stringValue("abcdefghij")}},
	}
	limits := agentconfig.Capture{MaxFrames: 20, MaxExpandFrames: 5, MaxProperties: 10, MaxDataSize: 5120, MaxStringLength: 3}
	engine := New(host)
	result := engine.Capture([]hostdbg.Frame{frame}, limits, nil, nil)

	v := result.StackFrames[0].Locals[0]
	if v.Value != "abc..." {
		t.Errorf("Value = %q, want %q", v.Value, "abc...")
	}
	if v.Status == nil || !strings.Contains(v.Status.Description.Format, "length 10") {
		t.Errorf("Status = %+v, want description mentioning length 10", v.Status)
	}
}

func TestCaptureWatchExpressionRejectsSideEffect(t *testing.T) {
	host := fakehost.New(0)
	engine := New(host)

	result := engine.Capture(nil, agentconfig.Capture{MaxFrames: 1, MaxExpandFrames: 1, MaxProperties: 1, MaxDataSize: 1024, MaxStringLength: 64},
		[]string{"item.increasePriceByOne()"},
		func(expr string) (hostdbg.Value, error) {
			t.Fatalf("eval should not be called for a statically-rejected expression")
			return hostdbg.Value{}, nil
		})

	if len(result.EvaluatedExpressions) != 1 || !result.EvaluatedExpressions[0].Status.IsError {
		t.Fatalf("EvaluatedExpressions = %+v, want one rejected entry", result.EvaluatedExpressions)
	}
}

func TestCaptureWatchExpressionNotStringTruncated(t *testing.T) {
	host := fakehost.New(0)
	engine := New(host)

	result := engine.Capture(nil, agentconfig.Capture{MaxFrames: 1, MaxExpandFrames: 1, MaxProperties: 1, MaxDataSize: 1024, MaxStringLength: 2},
		[]string{"longString"},
		func(expr string) (hostdbg.Value, error) {
			return stringValue("a long string value"), nil
		})

	got := result.EvaluatedExpressions[0]
	if got.Value != "a long string value" {
		t.Errorf("watch expression value = %q, want untruncated", got.Value)
	}
}
