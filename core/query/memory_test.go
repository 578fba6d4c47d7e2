package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	title     string
	category  string
	price     int64
	published bool
	createdAt time.Time
	tags      []string
	teacherID string
}

func (it testItem) QueryValue(field string) interface{} {
	switch field {
	case "title":
		return it.title
	case "category":
		return it.category
	case "price":
		return it.price
	case "published":
		return it.published
	case "created_at":
		return it.createdAt
	case "tags":
		return it.tags
	case "teacher_id":
		return it.teacherID
	}
	return nil
}

func titles(items []testItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.title)
	}
	return out
}

func TestApply(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []testItem{
		{title: "Intro to Go", category: "dev", price: 0, published: true, createdAt: now, tags: []string{"golang", "backend"}},
		{title: "Advanced Go", category: "dev", price: 5000, published: true, createdAt: now.Add(time.Hour), tags: []string{"golang"}},
		{title: "Watercolor", category: "art", price: 2000, published: false, createdAt: now.Add(2 * time.Hour)},
		{title: "Intro to Design", category: "Design", price: 1500, published: true, createdAt: now.Add(3 * time.Hour), tags: []string{"ux"}},
	}

	tests := []struct {
		name      string
		values    url.Values
		want      []string
		wantCount int
	}{
		{name: "default ordering", values: url.Values{}, want: []string{"Intro to Design", "Watercolor", "Advanced Go", "Intro to Go"}, wantCount: 4},
		{name: "title substring", values: url.Values{"title": {"intro"}, "sort": {"title"}}, want: []string{"Intro to Design", "Intro to Go"}, wantCount: 2},
		{name: "exact eq", values: url.Values{"category": {"Design"}}, want: []string{"Intro to Design"}, wantCount: 1},
		{name: "eq is case-sensitive", values: url.Values{"category": {"design"}}, want: []string{}, wantCount: 0},
		{name: "range", values: url.Values{"price[gte]": {"1500"}, "price[lt]": {"5000"}}, want: []string{"Intro to Design", "Watercolor"}, wantCount: 2},
		{name: "nin", values: url.Values{"category[nin]": {"dev,art"}}, want: []string{"Intro to Design"}, wantCount: 1},
		{name: "bool", values: url.Values{"published": {"false"}}, want: []string{"Watercolor"}, wantCount: 1},
		{name: "list prefix", values: url.Values{"tags": {"go"}, "sort": {"price"}}, want: []string{"Intro to Go", "Advanced Go"}, wantCount: 2},
		{name: "search", values: url.Values{"search": {"DEV"}, "sort": {"-price"}}, want: []string{"Advanced Go", "Intro to Go"}, wantCount: 2},
		{name: "search no match", values: url.Values{"search": {"lol"}}, want: []string{}, wantCount: 0},
		{name: "paginated", values: url.Values{"limit": {"3"}, "page": {"2"}}, want: []string{"Intro to Go"}, wantCount: 4},
		{name: "page out of range", values: url.Values{"limit": {"3"}, "page": {"5"}}, want: []string{}, wantCount: 4},
		{name: "multi sort", values: url.Values{"sort": {"category,-price"}}, want: []string{"Watercolor", "Intro to Design", "Advanced Go", "Intro to Go"}, wantCount: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.values, testSchema, testLimits)
			require.NoError(t, err)

			got, count := Apply(items, q)
			assert.Equal(t, tt.want, titles(got))
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestApply_programmaticConditions(t *testing.T) {
	items := []testItem{{title: "a", price: 1}, {title: "b", price: 2}, {title: "c", price: 3}}

	got, count := Apply(items, New(testSchema).Where("price", In, []interface{}{int64(1), int64(3)}))
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"a", "c"}, titles(got))
}

func TestApply_uuidAndLike(t *testing.T) {
	const ada = "6f9619ff-8b86-d011-b42d-00c04fc964ff"
	items := []testItem{
		{title: "a", price: 5, teacherID: ada},
		{title: "b", price: 15, teacherID: "3b241101-e2bb-4255-8caf-4136c566a962"},
		{title: "c", price: 50},
	}

	t.Run("uuid eq ignores case", func(t *testing.T) {
		q, err := Parse(url.Values{"teacher_id": {"6F9619FF-8B86-D011-B42D-00C04FC964FF"}}, testSchema, testLimits)
		require.NoError(t, err)
		got, _ := Apply(items, q)
		assert.Equal(t, []string{"a"}, titles(got))
	})
	t.Run("malformed uuid never matches", func(t *testing.T) {
		got, count := Apply(items, New(testSchema).Where("teacher_id", Eq, "a"))
		assert.Empty(t, got)
		assert.Zero(t, count)
	})
	t.Run("like on a number never matches", func(t *testing.T) {
		got, _ := Apply(items, New(testSchema).Where("price", Like, "5"))
		assert.Empty(t, got)
	})
}
