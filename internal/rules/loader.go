package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// compiledPrecondition holds a rule's preconditions as compiled,
// case-insensitive regexes, built once at load time.
type compiledPrecondition struct {
	merchant *regexp.Regexp
	account  *regexp.Regexp
	category *regexp.Regexp
	metadata map[string]*regexp.Regexp
}

// RuleSet is a loaded, validated, id-sorted collection of rules ready
// for matching.
type RuleSet struct {
	Rules    []Rule
	compiled map[int]compiledPrecondition
}

// LoadError aggregates every validation failure encountered while
// loading a rules directory. Loading fails fast: any issue aborts the
// whole load rather than yielding a partial rule set (spec.md §9,
// "Rule loading failure mode").
type LoadError struct {
	Issues []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rule load failed with %d issue(s):\n  %s", len(e.Issues), strings.Join(e.Issues, "\n  "))
}

type rawRule struct {
	ID       *int            `yaml:"id"`
	If       rawPrecondition `yaml:"if"`
	Then     rawThen         `yaml:"then"`
	Disabled bool            `yaml:"disabled"`
}

type rawPrecondition struct {
	Merchant string            `yaml:"merchant"`
	Account  string            `yaml:"account"`
	Category string            `yaml:"category"`
	Metadata map[string]string `yaml:"metadata"`
}

type rawThen struct {
	Category string         `yaml:"category"`
	Labels   yaml.Node      `yaml:"labels"`
	Memo     string         `yaml:"memo"`
	Metadata map[string]any `yaml:"metadata"`
}

// LoadDir loads and validates every *.yml/*.yaml file directly under
// dir, in lexical filename order, enforcing global rule-id uniqueness
// across all of them.
func LoadDir(dir string) (*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rules directory %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return LoadFiles(files)
}

// LoadFiles loads and validates the given rule files. A duplicate rule
// id, unparseable YAML, or regex compile failure anywhere in the set
// aborts the whole load and is reported alongside every other issue
// found, naming the offending file(s) (spec.md §4.3, §7).
func LoadFiles(files []string) (*RuleSet, error) {
	var issues []string
	seenBy := map[int][]string{}
	var built []Rule
	compiled := map[int]compiledPrecondition{}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		var raws []rawRule
		if err := yaml.Unmarshal(data, &raws); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid YAML: %v", path, err))
			continue
		}
		for _, raw := range raws {
			if raw.ID == nil {
				issues = append(issues, fmt.Sprintf("%s: rule missing required 'id'", path))
				continue
			}
			id := *raw.ID
			seenBy[id] = append(seenBy[id], path)

			labels, err := parseLabelTokens(raw.Then.Labels)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: rule %d: labels: %v", path, id, err))
				continue
			}
			metadata, err := stringifyMetadata(raw.Then.Metadata)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: rule %d: metadata: %v", path, id, err))
				continue
			}

			cp, err := compilePrecondition(raw.If)
			if err != nil {
				issues = append(issues, fmt.Sprintf("%s: rule %d: %v", path, id, err))
				continue
			}

			built = append(built, Rule{
				ID: id,
				If: Precondition{
					Merchant: raw.If.Merchant,
					Account:  raw.If.Account,
					Category: raw.If.Category,
					Metadata: raw.If.Metadata,
				},
				Then: Then{
					Category: raw.Then.Category,
					Labels:   labels,
					Memo:     raw.Then.Memo,
					Metadata: metadata,
				},
				Disabled:   raw.Disabled,
				SourceFile: path,
			})
			compiled[id] = cp
		}
	}

	for id, definedIn := range seenBy {
		if len(definedIn) > 1 {
			issues = append(issues, fmt.Sprintf("duplicate rule id %d defined in: %s", id, strings.Join(definedIn, ", ")))
		}
	}

	if len(issues) > 0 {
		sort.Strings(issues)
		return nil, &LoadError{Issues: issues}
	}

	sort.Slice(built, func(i, j int) bool { return built[i].ID < built[j].ID })
	return &RuleSet{Rules: built, compiled: compiled}, nil
}

func compilePrecondition(raw rawPrecondition) (compiledPrecondition, error) {
	var cp compiledPrecondition
	var err error
	if raw.Merchant != "" {
		if cp.merchant, err = regexp.Compile("(?i)" + raw.Merchant); err != nil {
			return cp, fmt.Errorf("merchant pattern: %w", err)
		}
	}
	if raw.Account != "" {
		if cp.account, err = regexp.Compile("(?i)" + raw.Account); err != nil {
			return cp, fmt.Errorf("account pattern: %w", err)
		}
	}
	if raw.Category != "" {
		if cp.category, err = regexp.Compile("(?i)" + raw.Category); err != nil {
			return cp, fmt.Errorf("category pattern: %w", err)
		}
	}
	if len(raw.Metadata) > 0 {
		cp.metadata = make(map[string]*regexp.Regexp, len(raw.Metadata))
		for k, pat := range raw.Metadata {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return cp, fmt.Errorf("metadata.%s pattern: %w", k, err)
			}
			cp.metadata[k] = re
		}
	}
	return cp, nil
}

func parseLabelTokens(node yaml.Node) ([]string, error) {
	if node.IsZero() {
		return nil, nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		return splitLabelString(s), nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("labels must be a string or list")
	}
}

func splitLabelString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Contains(s, ",") {
		var parts []string
		for _, p := range strings.Split(s, ",") {
			parts = append(parts, strings.TrimSpace(p))
		}
		return parts
	}
	return strings.Fields(s)
}

func stringifyMetadata(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case bool:
			out[k] = strconv.FormatBool(tv)
		case int:
			out[k] = strconv.Itoa(tv)
		case int64:
			out[k] = strconv.FormatInt(tv, 10)
		case float64:
			out[k] = strconv.FormatFloat(tv, 'g', -1, 64)
		default:
			return nil, fmt.Errorf("metadata.%s: unsupported value type %T", k, v)
		}
	}
	return out, nil
}
