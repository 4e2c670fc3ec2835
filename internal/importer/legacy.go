package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/p-n-ai/medq/internal/content"
)

// Collection names of the legacy document store.
const (
	CollectionYears     = "years"
	CollectionModules   = "modules"
	CollectionSubjects  = "subjects"
	CollectionLectures  = "lectures"
	CollectionQuestions = "questions"
)

const connectTimeout = 10 * time.Second

// LegacyYear is a year document of the legacy store.
type LegacyYear struct {
	ID   primitive.ObjectID `bson:"_id"`
	Slug string             `bson:"slug,omitempty"`
	Name string             `bson:"name"`
	Icon string             `bson:"icon,omitempty"`
}

// LegacyModule is a module document. Year references a year _id.
type LegacyModule struct {
	ID   primitive.ObjectID `bson:"_id"`
	Slug string             `bson:"slug,omitempty"`
	Name string             `bson:"name"`
	Year primitive.ObjectID `bson:"year"`
}

// LegacySubject is a subject document.
type LegacySubject struct {
	ID     primitive.ObjectID `bson:"_id"`
	Slug   string             `bson:"slug,omitempty"`
	Name   string             `bson:"name"`
	Module primitive.ObjectID `bson:"module"`
}

// LegacyLecture is a lecture document. Subject is the zero ObjectID for
// lectures that were never filed.
type LegacyLecture struct {
	ID      primitive.ObjectID `bson:"_id"`
	Slug    string             `bson:"slug,omitempty"`
	Name    string             `bson:"name"`
	Subject primitive.ObjectID `bson:"subject,omitempty"`
	Order   int                `bson:"order,omitempty"`
}

// LegacyQuestion is a question document.
type LegacyQuestion struct {
	ID            primitive.ObjectID `bson:"_id"`
	Lecture       primitive.ObjectID `bson:"lecture"`
	Question      string             `bson:"question"`
	Options       []string           `bson:"options"`
	CorrectAnswer int                `bson:"correctAnswer"`
	Explanation   string             `bson:"explanation,omitempty"`
	Difficulty    string             `bson:"difficulty,omitempty"`
	Order         int                `bson:"order,omitempty"`
}

// LegacyDump is everything read from the legacy store.
type LegacyDump struct {
	Years     []LegacyYear
	Modules   []LegacyModule
	Subjects  []LegacySubject
	Lectures  []LegacyLecture
	Questions []LegacyQuestion
}

// ConvertReport counts documents Convert could not place.
type ConvertReport struct {
	Orphans map[content.Kind]int `json:"orphans"`
}

// Convert maps legacy documents to a bundle. Each record keeps its ObjectID
// hex as LegacyKey and takes its slug, or the hex when there is none, as
// identifier. Documents whose parent is missing are dropped and counted,
// except lectures, which become unattached.
func Convert(d LegacyDump) (content.Bundle, ConvertReport) {
	var b content.Bundle
	report := ConvertReport{Orphans: make(map[content.Kind]int)}

	years := make(map[primitive.ObjectID]string, len(d.Years))
	for _, y := range d.Years {
		id := externalID(y.Slug, y.ID)
		years[y.ID] = id
		b.Years = append(b.Years, content.Year{ID: id, Name: y.Name, Icon: y.Icon, LegacyKey: y.ID.Hex()})
	}

	modules := make(map[primitive.ObjectID]string, len(d.Modules))
	for _, m := range d.Modules {
		parent, ok := years[m.Year]
		if !ok {
			report.orphan(content.KindModule, m.ID)
			continue
		}
		id := externalID(m.Slug, m.ID)
		modules[m.ID] = id
		b.Modules = append(b.Modules, content.Module{ID: id, Name: m.Name, YearID: parent, LegacyKey: m.ID.Hex()})
	}

	subjects := make(map[primitive.ObjectID]string, len(d.Subjects))
	for _, s := range d.Subjects {
		parent, ok := modules[s.Module]
		if !ok {
			report.orphan(content.KindSubject, s.ID)
			continue
		}
		id := externalID(s.Slug, s.ID)
		subjects[s.ID] = id
		b.Subjects = append(b.Subjects, content.Subject{ID: id, Name: s.Name, ModuleID: parent, LegacyKey: s.ID.Hex()})
	}

	lectures := make(map[primitive.ObjectID]string, len(d.Lectures))
	for _, l := range d.Lectures {
		id := externalID(l.Slug, l.ID)
		lectures[l.ID] = id
		lecture := content.Lecture{ID: id, Name: l.Name, Order: l.Order, LegacyKey: l.ID.Hex()}
		if parent, ok := subjects[l.Subject]; ok {
			lecture.SubjectID = &parent
		} else if !l.Subject.IsZero() {
			report.orphan(content.KindLecture, l.ID)
		}
		b.Lectures = append(b.Lectures, lecture)
	}

	for _, q := range d.Questions {
		parent, ok := lectures[q.Lecture]
		if !ok {
			report.orphan(content.KindQuestion, q.ID)
			continue
		}
		b.Questions = append(b.Questions, content.Question{
			ID:           q.ID.Hex(),
			LectureID:    parent,
			Text:         q.Question,
			Options:      q.Options,
			CorrectIndex: q.CorrectAnswer,
			Explanation:  q.Explanation,
			Difficulty:   strings.ToLower(strings.TrimSpace(q.Difficulty)),
			Order:        q.Order,
			LegacyKey:    q.ID.Hex(),
		})
	}
	return b, report
}

func (r ConvertReport) orphan(kind content.Kind, id primitive.ObjectID) {
	r.Orphans[kind]++
	slog.Warn("legacy document has no parent", "kind", kind, "legacy_key", id.Hex())
}

func externalID(slug string, id primitive.ObjectID) string {
	if s := strings.TrimSpace(slug); s != "" {
		return s
	}
	return id.Hex()
}

// LegacySource reads the legacy document store.
type LegacySource struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewLegacySource connects to uri and checks the connection.
func NewLegacySource(ctx context.Context, uri, database string) (*LegacySource, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect legacy store: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping legacy store: %w", err)
	}
	return &LegacySource{client: client, db: client.Database(database)}, nil
}

// Load reads every legacy collection.
func (s *LegacySource) Load(ctx context.Context) (LegacyDump, error) {
	var d LegacyDump
	if err := findAll(ctx, s.db.Collection(CollectionYears), &d.Years); err != nil {
		return LegacyDump{}, err
	}
	if err := findAll(ctx, s.db.Collection(CollectionModules), &d.Modules); err != nil {
		return LegacyDump{}, err
	}
	if err := findAll(ctx, s.db.Collection(CollectionSubjects), &d.Subjects); err != nil {
		return LegacyDump{}, err
	}
	if err := findAll(ctx, s.db.Collection(CollectionLectures), &d.Lectures); err != nil {
		return LegacyDump{}, err
	}
	if err := findAll(ctx, s.db.Collection(CollectionQuestions), &d.Questions); err != nil {
		return LegacyDump{}, err
	}
	slog.Info("legacy store read",
		"years", len(d.Years),
		"modules", len(d.Modules),
		"subjects", len(d.Subjects),
		"lectures", len(d.Lectures),
		"questions", len(d.Questions),
	)
	return d, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, out *[]T) error {
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return nil
}

// Close disconnects from the legacy store.
func (s *LegacySource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
