// Package importer moves content between the store and outside formats: YAML
// seed files, XLSX workbooks and the legacy document store.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/medq/internal/content"
)

// seedFile is the nested YAML layout of a seed bundle.
type seedFile struct {
	Years      []seedYear    `yaml:"years"`
	Unattached []seedLecture `yaml:"unattached,omitempty"`
}

type seedYear struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Icon    string       `yaml:"icon,omitempty"`
	Modules []seedModule `yaml:"modules"`
}

type seedModule struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Subjects []seedSubject `yaml:"subjects"`
}

type seedSubject struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Lectures []seedLecture `yaml:"lectures"`
}

type seedLecture struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Order     int            `yaml:"order"`
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	ID           string   `yaml:"id"`
	Text         string   `yaml:"text"`
	Options      []string `yaml:"options"`
	CorrectIndex int      `yaml:"correct_index"`
	Explanation  string   `yaml:"explanation,omitempty"`
	Difficulty   string   `yaml:"difficulty,omitempty"`
	Order        int      `yaml:"order"`
}

// LoadYAML reads one seed document. Lectures and questions without an explicit
// order take their position in the file; questions without an id are named
// "<lecture>-<position>" so reloading the same file is idempotent.
func LoadYAML(r io.Reader) (content.Bundle, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return content.Bundle{}, nil
		}
		return content.Bundle{}, fmt.Errorf("decode seed YAML: %w", err)
	}
	return f.bundle(), nil
}

// LoadYAMLFile reads the seed document at path.
func LoadYAMLFile(path string) (content.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return content.Bundle{}, err
	}
	b, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		return content.Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// LoadDir merges every .yaml/.yml file under root into one bundle.
func LoadDir(root string) (content.Bundle, error) {
	var all content.Bundle
	files := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		b, err := LoadYAMLFile(path)
		if err != nil {
			return err
		}
		all = Merge(all, b)
		files++
		return nil
	})
	if err != nil {
		return content.Bundle{}, fmt.Errorf("loading seed directory: %w", err)
	}
	slog.Info("seed content loaded", "files", files, "records", all.Len())
	return all, nil
}

// Merge appends the records of b to a.
func Merge(a, b content.Bundle) content.Bundle {
	a.Years = append(a.Years, b.Years...)
	a.Modules = append(a.Modules, b.Modules...)
	a.Subjects = append(a.Subjects, b.Subjects...)
	a.Lectures = append(a.Lectures, b.Lectures...)
	a.Questions = append(a.Questions, b.Questions...)
	return a
}

func (f seedFile) bundle() content.Bundle {
	var b content.Bundle
	for _, y := range f.Years {
		b.Years = append(b.Years, content.Year{ID: y.ID, Name: y.Name, Icon: y.Icon})
		for _, m := range y.Modules {
			b.Modules = append(b.Modules, content.Module{ID: m.ID, Name: m.Name, YearID: y.ID})
			for _, s := range m.Subjects {
				b.Subjects = append(b.Subjects, content.Subject{ID: s.ID, Name: s.Name, ModuleID: m.ID})
				subject := s.ID
				for i, l := range s.Lectures {
					b = l.append(b, &subject, i)
				}
			}
		}
	}
	for i, l := range f.Unattached {
		b = l.append(b, nil, i)
	}
	return b
}

func (l seedLecture) append(b content.Bundle, subject *string, pos int) content.Bundle {
	b.Lectures = append(b.Lectures, content.Lecture{
		ID:        l.ID,
		Name:      l.Name,
		SubjectID: subject,
		Order:     orDefault(l.Order, pos+1),
	})
	for i, q := range l.Questions {
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", l.ID, i+1)
		}
		b.Questions = append(b.Questions, content.Question{
			ID:           id,
			LectureID:    l.ID,
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Difficulty:   q.Difficulty,
			Order:        orDefault(q.Order, i+1),
		})
	}
	return b
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// WriteYAML writes b in the nested seed layout. Records whose parent is not
// part of b are dropped.
func WriteYAML(w io.Writer, b content.Bundle) error {
	questions := make(map[string][]seedQuestion)
	for _, q := range b.Questions {
		questions[q.LectureID] = append(questions[q.LectureID], seedQuestion{
			ID:           q.ID,
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Difficulty:   q.Difficulty,
			Order:        q.Order,
		})
	}
	var f seedFile
	lectures := make(map[string][]seedLecture)
	for _, l := range b.Lectures {
		sl := seedLecture{ID: l.ID, Name: l.Name, Order: l.Order, Questions: questions[l.ID]}
		if l.SubjectID == nil {
			f.Unattached = append(f.Unattached, sl)
			continue
		}
		lectures[*l.SubjectID] = append(lectures[*l.SubjectID], sl)
	}
	subjects := make(map[string][]seedSubject)
	for _, s := range b.Subjects {
		subjects[s.ModuleID] = append(subjects[s.ModuleID], seedSubject{ID: s.ID, Name: s.Name, Lectures: lectures[s.ID]})
	}
	modules := make(map[string][]seedModule)
	for _, m := range b.Modules {
		modules[m.YearID] = append(modules[m.YearID], seedModule{ID: m.ID, Name: m.Name, Subjects: subjects[m.ID]})
	}
	for _, y := range b.Years {
		f.Years = append(f.Years, seedYear{ID: y.ID, Name: y.Name, Icon: y.Icon, Modules: modules[y.ID]})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode seed YAML: %w", err)
	}
	return enc.Close()
}
