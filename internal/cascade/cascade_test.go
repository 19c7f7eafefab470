package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/dirconsole/internal/database"
	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

func customers() *schema.Directory {
	return &schema.Directory{
		ID:   "dir-customers",
		Name: "Customers",
		Fields: []*schema.Field{
			{ID: "f-name", Name: "name", Type: schema.TypeString, Meta: schema.FieldMeta{FieldOrder: 1}},
			{ID: "f-country", Name: "country", Type: schema.TypeString, Meta: schema.FieldMeta{FieldOrder: 2}},
			{ID: "f-region", Name: "region", Type: schema.TypeString, Meta: schema.FieldMeta{FieldOrder: 3, CascadeParent: "country"}},
			{ID: "f-city", Name: "city", Type: schema.TypeString, Meta: schema.FieldMeta{FieldOrder: 4, CascadeParent: "country", CascadeRequired: true}},
			{ID: "f-vip", Name: "vip", Type: schema.TypeBoolean, Meta: schema.FieldMeta{FieldOrder: 5}},
			{ID: "f-tier", Name: "tier", Type: schema.TypeInteger, Meta: schema.FieldMeta{FieldOrder: 6, CascadeParent: "vip"}},
		},
	}
}

type fixture struct {
	resolver *Resolver
	records  record.Store
	dir      *schema.Directory
	ids      map[string]string // name -> record id
}

// forEachStore runs a test against the memory and sqlite implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, fx *fixture)) {
	build := func(t *testing.T, recs record.Store, store Store) *fixture {
		reg := schema.NewRegistry()
		dir := customers()
		require.NoError(t, reg.Register(dir))
		fx := &fixture{resolver: NewResolver(reg, recs, store), records: recs, dir: dir, ids: map[string]string{}}
		seedCustomers(t, fx)
		return fx
	}
	t.Run("memory", func(t *testing.T) {
		fn(t, build(t, record.NewMemoryStore(), NewMemoryStore()))
	})
	t.Run("sql", func(t *testing.T) {
		db, err := database.OpenMemory(context.Background(), t.Name())
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, build(t, record.NewSQLStore(db), NewSQLStore(db)))
	})
}

func seedCustomers(t *testing.T, fx *fixture) {
	t.Helper()
	rows := []struct {
		name, country, region, city string
		vip                         any
		tier                        any
	}{
		{"acme", "UZ", "Tashkent", "Tashkent", true, 1},
		{"globex", "UZ", "Samarkand", "Urgut", false, nil},
		{"initech", "KZ", "Almaty", "Almaty", true, 2},
		{"umbrella", "", "", "", nil, nil},
	}
	for _, r := range rows {
		rec, err := fx.records.Create(context.Background(), fx.dir, "", []record.Input{
			{FieldID: "f-name", Value: r.name},
			{FieldID: "f-country", Value: r.country},
			{FieldID: "f-region", Value: r.region},
			{FieldID: "f-city", Value: r.city},
			{FieldID: "f-vip", Value: r.vip},
			{FieldID: "f-tier", Value: r.tier},
		})
		require.NoError(t, err)
		fx.ids[r.name] = rec.ID
	}
}

func names(p *record.Page) []string {
	out := make([]string, len(p.Records))
	for i, r := range p.Records {
		out[i] = r.Value("f-name").String()
	}
	return out
}

func TestResolve_DerivesConfigFromMetadata(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		cfg, err := fx.resolver.Resolve(context.Background(), fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)

		assert.Equal(t, "UZ", cfg.ParentValue)
		require.Len(t, cfg.Fields, 2)
		assert.Equal(t, "region", cfg.Fields[0].Name)
		assert.False(t, cfg.Fields[0].Required)
		assert.Equal(t, []string{"Samarkand", "Tashkent"}, cfg.Fields[0].Options)
		assert.Equal(t, "city", cfg.Fields[1].Name)
		assert.True(t, cfg.Fields[1].Required)
		assert.Equal(t, []string{"Tashkent", "Urgut"}, cfg.Fields[1].Options)
		assert.Empty(t, cfg.Selections)
	})
}

func TestResolve_BooleanParent(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		cfg, err := fx.resolver.Resolve(context.Background(), fx.dir.ID, "f-vip", "true")
		require.NoError(t, err)
		require.Len(t, cfg.Fields, 1)
		assert.Equal(t, []string{"1", "2"}, cfg.Fields[0].Options)
	})
}

func TestResolve_UnknownParent(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		_, err := fx.resolver.Resolve(context.Background(), fx.dir.ID, "f-ghost", "x")
		assert.ErrorIs(t, err, ErrUnknownField)

		_, err = fx.resolver.Resolve(context.Background(), "nope", "f-country", "x")
		assert.ErrorIs(t, err, schema.ErrUnknownDirectory)
	})
}

func TestPutConfig_OverridesMetadata(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		require.NoError(t, fx.resolver.PutConfig(ctx, Config{
			DirectoryID:   fx.dir.ID,
			ParentFieldID: "f-country",
			Fields:        []Field{{FieldID: "f-city", Required: false}},
		}))

		cfg, err := fx.resolver.Resolve(ctx, fx.dir.ID, "f-country", "KZ")
		require.NoError(t, err)
		require.Len(t, cfg.Fields, 1)
		assert.Equal(t, "city", cfg.Fields[0].Name)
		assert.False(t, cfg.Fields[0].Required)
		assert.Equal(t, []string{"Almaty"}, cfg.Fields[0].Options)
	})
}

func TestPutConfig_ListsEveryProblem(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		err := fx.resolver.PutConfig(context.Background(), Config{
			DirectoryID:   fx.dir.ID,
			ParentFieldID: "f-country",
			Fields: []Field{
				{FieldID: "f-country"},
				{FieldID: "f-ghost"},
				{Name: "region"},
				{FieldID: "f-region"},
			},
		})
		var ce schema.ConfigErrors
		require.True(t, errors.As(err, &ce))
		assert.Len(t, ce, 3)
	})
}

func TestFilteredRecords(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		page := query.Page{Number: 1, Size: 10}

		got, err := fx.resolver.FilteredRecords(ctx, fx.dir.ID, "f-country", "UZ", page)
		require.NoError(t, err)
		assert.Equal(t, []string{"acme", "globex"}, names(got))

		got, err = fx.resolver.FilteredRecords(ctx, fx.dir.ID, "f-vip", "false", page)
		require.NoError(t, err)
		assert.Equal(t, []string{"globex"}, names(got))

		got, err = fx.resolver.FilteredRecords(ctx, fx.dir.ID, "f-country", "", page)
		require.NoError(t, err)
		assert.Equal(t, []string{"umbrella"}, names(got))

		got, err = fx.resolver.FilteredRecords(ctx, fx.dir.ID, "", "", page)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Total)

		_, err = fx.resolver.FilteredRecords(ctx, fx.dir.ID, "f-ghost", "x", page)
		assert.ErrorIs(t, err, ErrUnknownField)
	})
}

func TestValidate_IndependentResults(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		results, err := fx.resolver.Validate(context.Background(), fx.dir.ID, []Selection{
			{FieldName: "ghost", Value: "x"},
			{FieldName: "region", Value: "Tashkent", ParentField: "country", ParentValue: "UZ"},
			{FieldName: "region", Value: ""},
			{FieldName: "tier", Value: "gold"},
			{FieldName: "region", Value: "Bukhara", ParentField: "country", ParentValue: "TJ"},
			{FieldName: "city", Value: "Almaty", ParentField: "planet", ParentValue: "Earth"},
			{FieldName: "Region", Value: "Almaty", ParentField: "Country", ParentValue: "KZ"},
		})
		require.NoError(t, err)
		require.Len(t, results, 7)

		valid := make([]bool, len(results))
		for i, r := range results {
			assert.Equal(t, i, r.Index)
			valid[i] = r.IsValid
			if !r.IsValid {
				assert.NotEmpty(t, r.Message)
			}
		}
		assert.Equal(t, []bool{false, true, false, false, false, false, true}, valid)
		assert.Contains(t, results[4].Message, "no longer matches")
		assert.False(t, Valid(results))
	})
}

func TestStore_ReplacesPerParentValue(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver

		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", []Selection{{FieldName: "region", Value: "Tashkent"}}))
		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "KZ", []Selection{{FieldName: "region", Value: "Almaty"}}))
		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", []Selection{{FieldName: "region", Value: "Samarkand"}}))

		got, err := r.Selections(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)
		assert.Equal(t, []Selection{{FieldName: "region", Value: "Samarkand", ParentField: "country", ParentValue: "UZ"}}, got)

		got, err = r.Selections(ctx, fx.dir.ID, "f-country", "KZ")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Almaty", got[0].Value)

		cfg, err := r.Resolve(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)
		assert.Equal(t, "Samarkand", cfg.Fields[0].Selected)
		assert.Empty(t, cfg.Fields[1].Selected)
	})
}

func TestStore_Idempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver
		sels := []Selection{{FieldName: "region", Value: "Tashkent"}, {FieldName: "CITY", Value: "Tashkent"}}

		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", sels))
		once, err := r.Selections(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)

		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", sels))
		twice, err := r.Selections(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)

		assert.Equal(t, once, twice)
		require.Len(t, twice, 2)
		assert.Equal(t, "city", twice[1].FieldName)

		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", nil))
		empty, err := r.Selections(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestStore_RejectsInvalidWithoutWriting(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver
		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "UZ", []Selection{{FieldName: "region", Value: "Tashkent"}}))

		err := r.Store(ctx, fx.dir.ID, "f-country", "UZ", []Selection{
			{FieldName: "region", Value: "Samarkand"},
			{FieldName: "ghost", Value: "x"},
			{FieldName: "country", Value: "KZ"},
		})
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		require.Len(t, ve.Results, 3)
		assert.True(t, ve.Results[0].IsValid)
		assert.False(t, ve.Results[1].IsValid)
		assert.False(t, ve.Results[2].IsValid)

		got, err := r.Selections(ctx, fx.dir.ID, "f-country", "UZ")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Tashkent", got[0].Value)
	})
}

func TestStore_RejectsParentValueNoRecordHolds(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver

		err := r.Store(ctx, fx.dir.ID, "f-country", "NOWHERE", []Selection{{FieldName: "region", Value: "Tashkent"}})
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		require.Len(t, ve.Results, 1)
		assert.False(t, ve.Results[0].IsValid)
		assert.Contains(t, ve.Results[0].Message, "no longer matches")

		got, err := r.Selections(ctx, fx.dir.ID, "f-country", "NOWHERE")
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, r.Store(ctx, fx.dir.ID, "f-country", "KZ", []Selection{{FieldName: "region", Value: "Almaty"}}))
	})
}

func TestSaveValues_PerRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver
		id := fx.ids["acme"]

		sels := []Selection{{FieldName: "region", Value: "Tashkent", ParentField: "country", ParentValue: "UZ"}}
		require.NoError(t, r.SaveValues(ctx, fx.dir.ID, id, sels))

		got, err := r.Values(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, sels, got)

		replacement := []Selection{{FieldName: "city", Value: "Chirchiq", ParentField: "country", ParentValue: "UZ"}}
		require.NoError(t, r.SaveValues(ctx, fx.dir.ID, id, replacement))
		got, err = r.Values(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, replacement, got)

		none, err := r.Values(ctx, fx.ids["globex"])
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestSaveValues_StaleParent(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		ctx := context.Background()
		r := fx.resolver
		id := fx.ids["acme"]

		_, err := fx.records.Update(ctx, fx.dir, id, []record.Input{{FieldID: "f-country", Value: "KZ"}})
		require.NoError(t, err)

		err = r.SaveValues(ctx, fx.dir.ID, id, []Selection{
			{FieldName: "region", Value: "Tashkent", ParentField: "country", ParentValue: "UZ"},
			{FieldName: "city", Value: "Almaty", ParentField: "country", ParentValue: "KZ"},
		})
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.False(t, ve.Results[0].IsValid)
		assert.Contains(t, ve.Results[0].Message, "stale")
		assert.True(t, ve.Results[1].IsValid)

		got, err := r.Values(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSaveValues_UnknownRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, fx *fixture) {
		err := fx.resolver.SaveValues(context.Background(), fx.dir.ID, "missing", nil)
		assert.ErrorIs(t, err, record.ErrNotFound)
	})
}
