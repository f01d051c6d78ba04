package registration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory table that understands the handful of
// condition and update expressions DynamoStore issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	scans int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(av map[string]types.AttributeValue) string {
	return av["PK"].(*types.AttributeValueMemberS).Value + "|" + av["SK"].(*types.AttributeValueMemberS).Value
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) condition(expr *string, existing map[string]types.AttributeValue, vals map[string]types.AttributeValue) bool {
	switch aws.ToString(expr) {
	case "":
		return true
	case "attribute_not_exists(PK)":
		return existing == nil
	case "attribute_exists(PK)":
		return existing != nil
	case "attribute_not_exists(PK) OR RegistrationID = :id":
		return existing == nil || strAttr(existing, "RegistrationID") == strAttr(vals, ":id")
	}
	panic("unexpected condition " + aws.ToString(expr))
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		ok := true
		switch {
		case ti.Put != nil:
			ok = f.condition(ti.Put.ConditionExpression, f.items[keyOf(ti.Put.Item)], ti.Put.ExpressionAttributeValues)
		case ti.Update != nil:
			ok = f.condition(ti.Update.ConditionExpression, f.items[keyOf(ti.Update.Key)], ti.Update.ExpressionAttributeValues)
		case ti.Delete != nil:
			ok = f.condition(ti.Delete.ConditionExpression, f.items[keyOf(ti.Delete.Key)], ti.Delete.ExpressionAttributeValues)
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.items[keyOf(ti.Put.Item)] = ti.Put.Item
		case ti.Update != nil:
			item := f.items[keyOf(ti.Update.Key)]
			updated := make(map[string]types.AttributeValue, len(item)+2)
			for k, v := range item {
				updated[k] = v
			}
			updated["Notified"] = ti.Update.ExpressionAttributeValues[":true"]
			if _, ok := updated["NotifiedAt"]; !ok {
				updated["NotifiedAt"] = ti.Update.ExpressionAttributeValues[":now"]
			}
			f.items[keyOf(ti.Update.Key)] = updated
		case ti.Delete != nil:
			delete(f.items, keyOf(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Scan returns the table in two pages to exercise pagination. Filter
// expressions are ignored; the store re-checks rows itself.
func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	half := len(keys) / 2

	var page []string
	var next map[string]types.AttributeValue
	if in.ExclusiveStartKey == nil {
		page = keys[:half]
		if half < len(keys) {
			next = map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "page2"}}
		}
	} else {
		page = keys[half:]
	}

	out := &dynamodb.ScanOutput{LastEvaluatedKey: next}
	for _, k := range page {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName}}, nil
}

func newTestDynamoStore(t *testing.T) (*DynamoStore, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "registrations")
	clock := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store, fake
}

func TestDynamo_RegisterAndDedup(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDynamoStore(t)

	first, err := store.Register(ctx, "Example.xyz", "A@B.com")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "example.xyz", first.Registration.Domain)

	second, err := store.Register(ctx, "example.xyz", "a@b.com")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Registration.ID, second.Registration.ID)

	other, err := store.Register(ctx, "example.xyz", "c@d.com")
	require.NoError(t, err)
	assert.True(t, other.Created)
}

func TestDynamo_ClaimKeyIsUnambiguous(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDynamoStore(t)

	assert.NotEqual(t, claimKey("a.x#b", "c"), claimKey("a.x", "b#c"))

	first, err := store.Register(ctx, "a.x#b", "c")
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := store.Register(ctx, "a.x", "b#c")
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Registration.ID, second.Registration.ID)
}

func TestDynamo_ListPendingAndMarkNotified(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestDynamoStore(t)

	var ids []string
	for _, d := range []string{"one.com", "two.com", "three.com"} {
		res, err := store.Register(ctx, d, "a@b.com")
		require.NoError(t, err)
		ids = append(ids, res.Registration.ID)
	}

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, reg := range pending {
		assert.Equal(t, ids[i], reg.ID, "ordered by creation time")
	}
	assert.Equal(t, 2, fake.scans, "paginated scan")

	require.NoError(t, store.MarkNotified(ctx, ids[0]))
	require.NoError(t, store.MarkNotified(ctx, ids[0]))

	got, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, got.Notified)
	require.NotNil(t, got.NotifiedAt)

	pending, err = store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	again, err := store.Register(ctx, "one.com", "a@b.com")
	require.NoError(t, err)
	assert.True(t, again.Created, "claim released after notification")
}

func TestDynamo_UnknownID(t *testing.T) {
	store, _ := newTestDynamoStore(t)
	err := store.MarkNotified(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "missing")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "get", storeErr.Op)
}

func TestDynamo_Ping(t *testing.T) {
	store, _ := newTestDynamoStore(t)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
}

func TestClaimConflict(t *testing.T) {
	assert.False(t, claimConflict(errors.New("throttled")))
	assert.True(t, claimConflict(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	}))
	assert.False(t, claimConflict(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	}))
}
