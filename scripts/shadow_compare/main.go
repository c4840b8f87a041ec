// Command shadow_compare replays read-only requests against the legacy Node
// server and the Go API and reports status or payload drift. Go responses are
// unwrapped from the success envelope before comparison.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method     string   `json:"method"`
	LegacyPath string   `json:"legacy_path"`
	GoPath     string   `json:"go_path"`
	Critical   bool     `json:"critical"`
	Ignore     []string `json:"ignore"`
}

type targetFile struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

type endpoint struct {
	base  string
	token string
}

func main() {
	var (
		goBase      string
		goToken     string
		legacyBase  string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080/api/v1", "Go API base URL including the API prefix")
	flag.StringVar(&goToken, "go-token", os.Getenv("SHADOW_GO_TOKEN"), "Bearer token for the Go API")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000/api", "Legacy API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	goSide := endpoint{base: goBase, token: goToken}
	legacySide := endpoint{base: legacyBase}

	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareTarget(client, goSide, legacySide, t)
		switch {
		case comp.Error != nil && t.Critical:
			breaking++
		case comp.Error == nil && (!comp.StatusMatch || !comp.BodyMatch):
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i := range file.Targets {
		if file.Targets[i].GoPath == "" {
			file.Targets[i].GoPath = file.Targets[i].LegacyPath
		}
	}
	return file.Targets, nil
}

func compareTarget(client *http.Client, goSide, legacySide endpoint, tgt target) comparison {
	comp := comparison{Target: tgt}

	goStatus, goBody, goDur, goErr := fetch(client, goSide, tgt.Method, tgt.GoPath)
	legacyStatus, legacyBody, legacyDur, legacyErr := fetch(client, legacySide, tgt.Method, tgt.LegacyPath)
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus
	comp.BodyMatch = bodiesEqual(unwrapEnvelope(goBody), legacyBody, tgt.Ignore)
	return comp
}

func fetch(client *http.Client, side endpoint, method, path string) (int, []byte, time.Duration, error) {
	if client == nil {
		return 0, nil, 0, errors.New("nil client")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(side.base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if side.token != "" {
		req.Header.Set("Authorization", "Bearer "+side.token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, time.Since(start), fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

// unwrapEnvelope returns the data member of a success envelope, or the body unchanged.
func unwrapEnvelope(body []byte) []byte {
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Status != "success" || envelope.Data == nil {
		return body
	}
	return envelope.Data
}

func bodiesEqual(a, b []byte, ignore []string) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, key := range ignore {
		skip[normalizeKey(key)] = struct{}{}
	}
	return reflect.DeepEqual(normalize(aj, skip), normalize(bj, skip))
}

// normalizeKey folds snake_case and camelCase to the same form.
func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

func normalize(v interface{}, skip map[string]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			key := normalizeKey(k)
			if _, ok := skip[key]; ok {
				continue
			}
			out[key] = normalize(inner, skip)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalize(inner, skip)
		}
		return out
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s -> %s\n", status, res.Target.Method, res.Target.LegacyPath, res.Target.GoPath)
		fmt.Printf("  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Printf("  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
