package importer_test

import (
	"bytes"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/importer"
)

func sampleBundle() content.Bundle {
	subject := "physio"
	return content.Bundle{
		Years:    []content.Year{{ID: "y3", Name: "Year 3", Icon: "heart", LegacyKey: "65a1f0c2e4b0a1b2c3d4e5f6"}},
		Modules:  []content.Module{{ID: "cardio", Name: "Cardiovascular", YearID: "y3"}},
		Subjects: []content.Subject{{ID: "physio", Name: "Physiology", ModuleID: "cardio"}},
		Lectures: []content.Lecture{
			{ID: "cycle", Name: "Cardiac cycle", SubjectID: &subject, Order: 1},
			{ID: "drafts", Name: "Drafts"},
		},
		Questions: []content.Question{
			{ID: "q1", LectureID: "cycle", Text: "S1?", Options: []string{"AV", "Semilunar"}, CorrectIndex: 0, Difficulty: "easy", Order: 1},
			{ID: "q2", LectureID: "cycle", Text: "Murmur grade?", Options: []string{"I", "II", "III", "IV"}, CorrectIndex: 2, Explanation: "Thrill starts at IV.", Difficulty: "hard", Order: 2},
		},
	}
}

func TestWorkbook_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := importer.WriteWorkbook(&buf, sampleBundle()); err != nil {
		t.Fatalf("WriteWorkbook() error = %v", err)
	}

	got, err := importer.ReadWorkbook(&buf)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	want := sampleBundle()

	if len(got.Years) != 1 || got.Years[0] != want.Years[0] {
		t.Errorf("years = %+v, want %+v", got.Years, want.Years)
	}
	if len(got.Lectures) != 2 {
		t.Fatalf("lectures = %+v", got.Lectures)
	}
	if got.Lectures[0].Subject() != "physio" || got.Lectures[1].SubjectID != nil {
		t.Errorf("lecture parents = %q, %v", got.Lectures[0].Subject(), got.Lectures[1].SubjectID)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("questions = %+v", got.Questions)
	}
	for i, q := range got.Questions {
		w := want.Questions[i]
		if q.ID != w.ID || q.LectureID != w.LectureID || q.CorrectIndex != w.CorrectIndex ||
			q.Explanation != w.Explanation || q.Order != w.Order || !slices.Equal(q.Options, w.Options) {
			t.Errorf("question %d = %+v, want %+v", i, q, w)
		}
	}
}

func TestReadWorkbook_HandWritten(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", importer.SheetQuestions); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"ID", "Lecture_ID", "Text", "Correct_Index", "Option_1", "Option_2", "Option_3"},
		{"q1", "l1", "Pick B", 1, "A", "B", ""},
		{},
		{"q2", "l1", "Pick C", 2, "A", "B", "C"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(importer.SheetQuestions, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	b, err := importer.ReadWorkbook(&buf)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	if len(b.Years) != 0 {
		t.Errorf("missing sheet produced years: %+v", b.Years)
	}
	if len(b.Questions) != 2 {
		t.Fatalf("questions = %d, want 2 (blank row skipped)", len(b.Questions))
	}
	if got := b.Questions[0].Options; !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("options = %q, want [A B]", got)
	}
	if got := b.Questions[1].CorrectIndex; got != 2 {
		t.Errorf("correct index = %d, want 2", got)
	}
}

func TestReadWorkbook_BadNumber(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", importer.SheetLectures); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow(importer.SheetLectures, "A1", &[]any{"id", "name", "order"})
	_ = f.SetSheetRow(importer.SheetLectures, "A2", &[]any{"l1", "Lecture", "first"})
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	if _, err := importer.ReadWorkbook(&buf); err == nil {
		t.Error("ReadWorkbook() expected error for non-numeric order")
	}
}

func TestReadWorkbook_NotAWorkbook(t *testing.T) {
	if _, err := importer.ReadWorkbook(bytes.NewReader([]byte("id,name\n"))); err == nil {
		t.Error("ReadWorkbook() expected error")
	}
}
