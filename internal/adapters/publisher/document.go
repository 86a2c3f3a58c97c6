package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the benchmark feed consumed by the dashboard.
type Document struct {
	LastUpdate int64  `json:"lastUpdate"`
	RepoURL    string `json:"repoUrl"`
	Entries    Suites `json:"entries"`
}

// Suites keeps suite order, which a JSON object decoded into a map would lose.
type Suites []Suite

// Suite holds the runs recorded for one benchmark suite.
type Suite struct {
	Name    string
	Entries []Entry
}

// Entry is one CI run: a commit and the benches measured for it.
type Entry struct {
	Commit  Commit  `json:"commit"`
	Date    int64   `json:"date"`
	Tool    string  `json:"tool"`
	Benches []Bench `json:"benches"`
}

// Commit mirrors the commit payload of the push that triggered the run.
type Commit struct {
	Author    Person `json:"author"`
	Committer Person `json:"committer"`
	Distinct  bool   `json:"distinct"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	TreeID    string `json:"tree_id"`
	URL       string `json:"url"`
}

// Person is a commit author or committer.
type Person struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Bench is a single measurement.
type Bench struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Extra string  `json:"extra,omitempty"`
}

// MarshalJSON writes suites as a JSON object in slice order.
func (s Suites) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, suite := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(suite.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		entries := suite.Entries
		if entries == nil {
			entries = []Entry{}
		}
		if err := enc.Encode(entries); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	// Encode terminates every value with a newline; the caller compacts.
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of suites, keeping key order.
func (s *Suites) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("entries: expected object, got %v", tok)
	}

	seen := make(map[string]struct{})
	var out Suites
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("entries: expected suite name, got %v", tok)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("entries: suite %q repeated", name)
		}
		seen[name] = struct{}{}

		var entries []Entry
		if err := dec.Decode(&entries); err != nil {
			return fmt.Errorf("entries: suite %q: %w", name, err)
		}
		out = append(out, Suite{Name: name, Entries: entries})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
