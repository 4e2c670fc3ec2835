package importer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/importer"
)

func legacyDump() (importer.LegacyDump, map[string]primitive.ObjectID) {
	ids := make(map[string]primitive.ObjectID)
	for _, name := range []string{"year", "module", "subject", "lecture", "loose", "stray", "question", "lost"} {
		ids[name] = primitive.NewObjectID()
	}
	return importer.LegacyDump{
		Years:    []importer.LegacyYear{{ID: ids["year"], Slug: "year-3", Name: "Year 3"}},
		Modules:  []importer.LegacyModule{{ID: ids["module"], Name: "Cardiovascular", Year: ids["year"]}},
		Subjects: []importer.LegacySubject{{ID: ids["subject"], Slug: "physio", Name: "Physiology", Module: ids["module"]}},
		Lectures: []importer.LegacyLecture{
			{ID: ids["lecture"], Slug: "cycle", Name: "Cardiac cycle", Subject: ids["subject"], Order: 1},
			{ID: ids["loose"], Name: "Drafts"},
			{ID: ids["stray"], Name: "Stray", Subject: primitive.NewObjectID()},
		},
		Questions: []importer.LegacyQuestion{
			{ID: ids["question"], Lecture: ids["lecture"], Question: "S1?", Options: []string{"AV", "Semilunar"}, CorrectAnswer: 0, Difficulty: " Hard "},
			{ID: ids["lost"], Lecture: primitive.NewObjectID(), Question: "Gone?", Options: []string{"a", "b"}},
		},
	}, ids
}

func TestConvert(t *testing.T) {
	dump, ids := legacyDump()
	b, report := importer.Convert(dump)

	if got := b.Years[0]; got.ID != "year-3" || got.LegacyKey != ids["year"].Hex() {
		t.Errorf("year = %+v, want slug id with legacy key", got)
	}
	if got := b.Modules[0]; got.ID != ids["module"].Hex() || got.YearID != "year-3" {
		t.Errorf("module = %+v, want hex id under year-3", got)
	}
	if len(b.Lectures) != 3 {
		t.Fatalf("lectures = %d, want 3", len(b.Lectures))
	}
	if got := b.Lectures[0].Subject(); got != "physio" {
		t.Errorf("lecture subject = %q, want physio", got)
	}
	for _, l := range b.Lectures[1:] {
		if l.SubjectID != nil {
			t.Errorf("lecture %s subject = %q, want unattached", l.ID, *l.SubjectID)
		}
	}
	if len(b.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(b.Questions))
	}
	if q := b.Questions[0]; q.LectureID != "cycle" || q.Difficulty != "hard" || q.LegacyKey != ids["question"].Hex() {
		t.Errorf("question = %+v", q)
	}

	want := map[content.Kind]int{content.KindLecture: 1, content.KindQuestion: 1}
	for kind, n := range want {
		if report.Orphans[kind] != n {
			t.Errorf("orphans[%s] = %d, want %d", kind, report.Orphans[kind], n)
		}
	}
}

func TestConvert_ImportsAndResolvesLegacyKeys(t *testing.T) {
	ctx := t.Context()
	dump, ids := legacyDump()
	b, _ := importer.Convert(dump)

	svc := content.NewService(content.ServiceConfig{})
	if _, err := svc.Import(ctx, b, false); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	d, err := svc.Lecture(ctx, ids["lecture"].Hex())
	if err != nil {
		t.Fatalf("Lecture(legacy key) error = %v", err)
	}
	if d.ID != "cycle" || len(d.Questions) != 1 {
		t.Errorf("lecture = %+v, want cycle with one question", d)
	}
}

func TestLegacySource_Load(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := t.Context()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	endpoint, err := ctr.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	dump, _ := legacyDump()
	seedMongo(ctx, t, endpoint, dump)

	src, err := importer.NewLegacySource(ctx, endpoint, "legacy")
	require.NoError(t, err)
	defer src.Close(context.WithoutCancel(ctx))

	got, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Years, 1)
	assert.Len(t, got.Lectures, 3)
	require.Len(t, got.Questions, 2)

	b, _ := importer.Convert(got)
	assert.Equal(t, "year-3", b.Years[0].ID)
	assert.Len(t, b.Questions, 1)
}

func seedMongo(ctx context.Context, t *testing.T, uri string, d importer.LegacyDump) {
	t.Helper()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.WithoutCancel(ctx))

	db := client.Database("legacy")
	insert := func(coll string, docs []any) {
		if len(docs) == 0 {
			return
		}
		_, err := db.Collection(coll).InsertMany(ctx, docs)
		require.NoError(t, err, "insert %s", coll)
	}
	insert(importer.CollectionYears, toDocs(d.Years))
	insert(importer.CollectionModules, toDocs(d.Modules))
	insert(importer.CollectionSubjects, toDocs(d.Subjects))
	insert(importer.CollectionLectures, toDocs(d.Lectures))
	insert(importer.CollectionQuestions, toDocs(d.Questions))
}

func toDocs[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
