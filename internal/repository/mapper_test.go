package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/tender-eval/internal/evaluation"
	"github.com/nurpe/tender-eval/internal/model"
)

var (
	firmA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	firmB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func testKey() model.EvaluationKey {
	card := uuid.New()
	return model.EvaluationKey{
		ProjectID:        uuid.New(),
		DisciplineID:     uuid.New(),
		ConsultantCardID: &card,
	}
}

// sampleEvaluation builds Original -> Design (Concept, Docs) plus a root leaf,
// and a priced leaf under Adds and Subs.
func sampleEvaluation(t *testing.T) *model.TenderEvaluation {
	t.Helper()
	ev, err := evaluation.New(testKey(), evaluation.DefaultTableNames)
	require.NoError(t, err)
	original, adds := ev.Tables[0].ID, ev.Tables[1].ID

	design, err := evaluation.AddItem(ev, original, model.LineItem{Description: "Design Services", IsCategory: true}, nil)
	require.NoError(t, err)
	for _, leaf := range []struct {
		description string
		a, b        int64
	}{
		{"Concept Design", 25000, 30000},
		{"Documentation", 15000, 20000},
	} {
		_, err := evaluation.AddItem(ev, original, model.LineItem{
			Description: leaf.description,
			Prices: []model.PriceEntry{
				{FirmID: firmB, Amount: decimal.NewFromInt(leaf.b)},
				{FirmID: firmA, Amount: decimal.NewFromInt(leaf.a)},
			},
		}, &design.ID)
		require.NoError(t, err)
	}
	_, err = evaluation.AddItem(ev, original, model.LineItem{Description: "Travel", SourceRef: "fs-travel"}, nil)
	require.NoError(t, err)
	_, err = evaluation.AddItem(ev, adds, model.LineItem{
		Description: "Variation 1",
		Prices:      []model.PriceEntry{{FirmID: firmA, Amount: decimal.RequireFromString("1244.60")}},
	}, nil)
	require.NoError(t, err)
	return ev
}

func assertSameEvaluation(t *testing.T, want, got *model.TenderEvaluation) {
	t.Helper()
	assert.Equal(t, want.ProjectID, got.ProjectID)
	assert.Equal(t, want.DisciplineID, got.DisciplineID)
	assert.Equal(t, want.ConsultantCardID, got.ConsultantCardID)
	assert.Equal(t, want.ContractorCardID, got.ContractorCardID)
	assert.Truef(t, want.GrandTotal.Equal(got.GrandTotal), "grand total: want %s, got %s", want.GrandTotal, got.GrandTotal)
	require.Len(t, got.Tables, len(want.Tables))
	for i, table := range want.Tables {
		other := got.Tables[i]
		assert.Equal(t, table.ID, other.ID)
		assert.Equal(t, table.TableNumber, other.TableNumber)
		assert.Equal(t, table.TableName, other.TableName)
		assert.Equal(t, table.SortOrder, other.SortOrder)
		assert.Truef(t, table.SubTotal.Equal(other.SubTotal), "table %s subtotal", table.TableName)
		assertSameItems(t, table.RootItems, other.RootItems)
	}
}

func assertSameItems(t *testing.T, want, got []*model.LineItem) {
	t.Helper()
	require.Len(t, got, len(want))
	for i, item := range want {
		other := got[i]
		assert.Equal(t, item.ID, other.ID)
		assert.Equal(t, item.Description, other.Description)
		assert.Equal(t, item.IsCategory, other.IsCategory)
		assert.Equal(t, item.SortOrder, other.SortOrder)
		assert.Equal(t, item.ParentID, other.ParentID)
		assert.Equal(t, item.SourceRef, other.SourceRef)
		if item.CategorySubtotal == nil {
			assert.Nil(t, other.CategorySubtotal)
		} else if assert.NotNil(t, other.CategorySubtotal) {
			assert.True(t, item.CategorySubtotal.Equal(*other.CategorySubtotal))
		}
		require.Len(t, other.Prices, len(item.Prices))
		for j, price := range item.Prices {
			assert.Equal(t, price.FirmID, other.Prices[j].FirmID)
			assert.Truef(t, price.Amount.Equal(other.Prices[j].Amount), "price %s", price.FirmID)
		}
		assertSameItems(t, item.Children, other.Children)
	}
}

func TestFlattenRebuild_RoundTrip(t *testing.T) {
	ev := sampleEvaluation(t)
	id := uuid.New()

	rows := Flatten(ev, id)
	assert.Equal(t, id, rows.Evaluation.ID)
	assert.Len(t, rows.Tables, 2)
	assert.Len(t, rows.Items, 5)
	assert.Len(t, rows.Prices, 5)
	for _, table := range rows.Tables {
		assert.Equal(t, id, table.EvaluationID)
	}

	got, err := Rebuild(rows)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assertSameEvaluation(t, ev, got)
}

func TestFlatten_ParentsPrecedeChildren(t *testing.T) {
	rows := Flatten(sampleEvaluation(t), uuid.New())
	seen := make(map[uuid.UUID]bool)
	for _, item := range rows.Items {
		if item.ParentCategoryID != nil {
			assert.True(t, seen[*item.ParentCategoryID], "parent of %s emitted after it", item.Description)
		}
		seen[item.ID] = true
	}
}

func TestRebuild_OrdersRowsBySortOrder(t *testing.T) {
	ev := sampleEvaluation(t)
	rows := Flatten(ev, uuid.New())

	for i, j := 0, len(rows.Items)-1; i < j; i, j = i+1, j-1 {
		rows.Items[i], rows.Items[j] = rows.Items[j], rows.Items[i]
	}
	rows.Tables[0], rows.Tables[1] = rows.Tables[1], rows.Tables[0]

	got, err := Rebuild(rows)
	require.NoError(t, err)
	assertSameEvaluation(t, ev, got)
}

func TestRebuild_KeepsStoredSubtotals(t *testing.T) {
	ev := sampleEvaluation(t)
	rows := Flatten(ev, uuid.New())
	rows.Evaluation.GrandTotal = decimal.NewFromInt(1)

	got, err := Rebuild(rows)
	require.NoError(t, err)
	assert.True(t, got.GrandTotal.Equal(decimal.NewFromInt(1)))
}

func TestRebuild_Rejects(t *testing.T) {
	cases := map[string]func(rows *EvaluationRows){
		"unknown table": func(rows *EvaluationRows) {
			rows.Items[0].TableID = uuid.New()
		},
		"unknown parent": func(rows *EvaluationRows) {
			missing := uuid.New()
			rows.Items[1].ParentCategoryID = &missing
		},
		"duplicate item": func(rows *EvaluationRows) {
			rows.Items = append(rows.Items, rows.Items[0])
		},
		"price on category": func(rows *EvaluationRows) {
			rows.Prices = append(rows.Prices, PriceRow{LineItemID: rows.Items[0].ID, FirmID: firmA, Amount: decimal.NewFromInt(1)})
		},
		"price for unknown item": func(rows *EvaluationRows) {
			rows.Prices = append(rows.Prices, PriceRow{LineItemID: uuid.New(), FirmID: firmA})
		},
		"child of leaf": func(rows *EvaluationRows) {
			leaf := rows.Items[1].ID
			rows.Items[2].ParentCategoryID = &leaf
		},
		"cycle": func(rows *EvaluationRows) {
			child := rows.Items[1].ID
			rows.Items[1].IsCategory = true
			rows.Items[0].ParentCategoryID = &child
			rows.Prices = rows.Prices[2:]
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rows := Flatten(sampleEvaluation(t), uuid.New())
			require.True(t, rows.Items[0].IsCategory)
			mutate(&rows)
			_, err := Rebuild(rows)
			assert.Error(t, err)
		})
	}
}

func TestBuildFeeTree(t *testing.T) {
	parent := "p"
	missing := "gone"
	self := "self"
	rows := []FeeStructureRow{
		{ID: "c2", ParentID: &parent, Description: "Second", SortOrder: 2},
		{ID: "p", Description: "Parent", IsCategory: true, SortOrder: 1},
		{ID: "c1", ParentID: &parent, Description: "First", SortOrder: 1},
		{ID: "orphan", ParentID: &missing, Description: "Orphan", SortOrder: 0},
		{ID: "self", ParentID: &self, Description: "Self", SortOrder: 5},
	}

	tree := BuildFeeTree(rows)
	require.Len(t, tree, 3)
	assert.Equal(t, "orphan", tree[0].ID)
	assert.Equal(t, "p", tree[1].ID)
	assert.Equal(t, "self", tree[2].ID)
	require.Len(t, tree[1].Children, 2)
	assert.Equal(t, "c1", tree[1].Children[0].ID)
	assert.Equal(t, "c2", tree[1].Children[1].ID)
	assert.Empty(t, BuildFeeTree(nil))
}

func TestBuildFeeTree_ParentCycleKept(t *testing.T) {
	a, b := "a", "b"
	rows := []FeeStructureRow{
		{ID: "root", Description: "Root", SortOrder: 0},
		{ID: "a", ParentID: &b, Description: "A", IsCategory: true, SortOrder: 1},
		{ID: "b", ParentID: &a, Description: "B", SortOrder: 2},
	}

	tree := BuildFeeTree(rows)
	require.Len(t, tree, 2)
	assert.Equal(t, "root", tree[0].ID)
	assert.Equal(t, "a", tree[1].ID)
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, "b", tree[1].Children[0].ID)
	assert.Empty(t, tree[1].Children[0].Children)
}
