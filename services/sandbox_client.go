package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"code-race-system/models"
	"code-race-system/utils"
)

const pistonEndpoint = "https://emkc.org/api/v2/piston/execute"

// TestResult is one test case outcome as reported by the sandbox.
type TestResult struct {
	Passed   bool            `json:"passed"`
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
	Actual   json.RawMessage `json:"actual,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ExecutionResult aggregates a full sandbox run.
type ExecutionResult struct {
	Results   []TestResult `json:"results"`
	AllPassed bool         `json:"all_passed"`
}

// SandboxExecutor runs submitted code against a test batch. Failures of any
// kind (transport, compile, runtime) surface as non-passing results with an
// error string — never as a fault the caller must distinguish from "test
// failed".
type SandboxExecutor interface {
	Execute(ctx context.Context, code, language string, cases []models.TestCase) ExecutionResult
}

// PistonClient executes code through the public Piston API.
type PistonClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewPistonClient() *PistonClient {
	return &PistonClient{Endpoint: pistonEndpoint, HTTPClient: utils.HTTPClient}
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin"`
	Args     []string     `json:"args"`

	CompileTimeout int `json:"compile_timeout"`
	RunTimeout     int `json:"run_timeout"`
}

type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type pistonResponse struct {
	Run struct {
		Code   int    `json:"code"`
		Stderr string `json:"stderr"`
		Output string `json:"output"`
	} `json:"run"`
}

func (p *PistonClient) Execute(ctx context.Context, code, language string, cases []models.TestCase) ExecutionResult {
	result := ExecutionResult{AllPassed: true}

	for _, tc := range cases {
		r := p.runCase(ctx, code, language, tc)
		if !r.Passed {
			result.AllPassed = false
		}
		result.Results = append(result.Results, r)
	}

	if len(result.Results) == 0 {
		result.AllPassed = false
	}
	return result
}

func (p *PistonClient) runCase(ctx context.Context, code, language string, tc models.TestCase) TestResult {
	failed := func(msg string) TestResult {
		return TestResult{Input: tc.Input, Expected: tc.Expected, Error: msg}
	}

	payload := pistonRequest{
		Language:       language,
		Version:        "*",
		Files:          []pistonFile{{Name: "main.py", Content: prepareCode(code, language, tc)}},
		Args:           []string{},
		CompileTimeout: 10000,
		RunTimeout:     5000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failed(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return failed(fmt.Sprintf("sandbox unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(fmt.Sprintf("sandbox returned status %d", resp.StatusCode))
	}

	var parsed pistonResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return failed(fmt.Sprintf("failed to decode sandbox response: %v", err))
	}

	if parsed.Run.Code != 0 || parsed.Run.Stderr != "" {
		msg := strings.TrimSpace(parsed.Run.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(parsed.Run.Output)
		}
		if msg == "" {
			msg = "runtime error"
		}
		return failed(msg)
	}

	output := strings.TrimSpace(parsed.Run.Output)
	actual := json.RawMessage(output)
	if !json.Valid(actual) {
		// Plain text output; compare it as a JSON string.
		quoted, _ := json.Marshal(output)
		actual = quoted
	}

	return TestResult{
		Passed:   jsonEqual(actual, tc.Expected),
		Input:    tc.Input,
		Expected: tc.Expected,
		Actual:   actual,
	}
}

var funcNameRe = regexp.MustCompile(`def\s+(\w+)\s*\(`)

// prepareCode wraps the user's function in a harness that decodes the test
// input, calls the function with unpacked arguments and prints the result as
// JSON for comparison.
func prepareCode(userCode, language string, tc models.TestCase) string {
	if language != "python" {
		return userCode
	}

	functionName := "solution"
	if m := funcNameRe.FindStringSubmatch(userCode); m != nil {
		functionName = m[1]
	}

	input := string(tc.Input)
	if input == "" {
		input = "null"
	}

	return fmt.Sprintf(`
import json
import sys

%s

try:
    test_input = json.loads('''%s''')

    if isinstance(test_input, dict):
        result = %s(**test_input)
    elif isinstance(test_input, list):
        result = %s(*test_input)
    else:
        result = %s(test_input)

    print(json.dumps(result, default=str))
except Exception as e:
    print(f"Error: {str(e)}", file=sys.stderr)
    sys.exit(1)
`, userCode, input, functionName, functionName, functionName)
}

// jsonEqual compares two JSON documents structurally, ignoring formatting.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
