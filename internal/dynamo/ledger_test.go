package dynamo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/ariefcatur/order-inventory/internal/memstore"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable evaluates the three update expressions the ledger sends.
type fakeTable struct {
	mu    sync.Mutex
	stock map[string]int
	err   error
}

func item(id string, stock int) map[string]types.AttributeValue {
	m, _ := attributevalue.MarshalMap(stockItem{ProductID: id, Stock: stock})
	return m
}

func keyOf(key map[string]types.AttributeValue) string {
	var k struct {
		ProductID string `dynamodbav:"product_id"`
	}
	_ = attributevalue.UnmarshalMap(key, &k)
	return k.ProductID
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := keyOf(in.Key)
	n, ok := f.stock[id]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item(id, n)}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := keyOf(in.Key)
	var qty int
	_ = attributevalue.Unmarshal(in.ExpressionAttributeValues[":qty"], &qty)

	cur, exists := f.stock[id]
	failed := &types.ConditionalCheckFailedException{Message: new(string)}
	if exists {
		failed.Item = item(id, cur)
	}
	if !exists {
		return nil, failed
	}

	var next int
	switch *in.UpdateExpression {
	case exprDecrement:
		if cur < qty {
			return nil, failed
		}
		next = cur - qty
	case exprIncrement:
		next = cur + qty
	case exprSet:
		next = qty
	}
	f.stock[id] = next

	attrs := item(id, next)
	if in.ReturnValues == types.ReturnValueUpdatedOld {
		attrs = item(id, cur)
	}
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t int
	_ = attributevalue.Unmarshal(in.ExpressionAttributeValues[":t"], &t)
	out := &dynamodb.ScanOutput{}
	for id, n := range f.stock {
		if n <= t {
			out.Items = append(out.Items, item(id, n))
		}
	}
	return out, nil
}

func newLedger(stock map[string]int) (*Ledger, *fakeTable) {
	products := memstore.NewProducts()
	for id := range stock {
		products.Put(catalog.Product{ID: id, SKU: "SKU-" + id, Name: id, Status: catalog.ProductActive})
	}
	products.Put(catalog.Product{ID: "orphan", Status: catalog.ProductActive})
	ft := &fakeTable{stock: stock}
	return NewLedger(ft, "product_stock", products), ft
}

func TestDynamoDecrement(t *testing.T) {
	l, ft := newLedger(map[string]int{"p-1": 5})
	ctx := context.Background()

	remaining, ok, err := l.Decrement(ctx, "p-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, remaining)

	remaining, ok, err = l.Decrement(ctx, "p-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, 2, ft.stock["p-1"])

	_, _, err = l.Decrement(ctx, "ghost", 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}

func TestDynamoIncrementSetRead(t *testing.T) {
	l, _ := newLedger(map[string]int{"p-1": 5})
	ctx := context.Background()

	n, err := l.Increment(ctx, "p-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	old, err := l.Set(ctx, "p-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 9, old)

	p, err := l.Read(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Stock)
	assert.Equal(t, "SKU-p-1", p.SKU)

	fp, err := l.FindProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 20, fp.Stock)

	_, err = l.Increment(ctx, "ghost", 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
	_, err = l.Read(ctx, "orphan")
	assert.ErrorIs(t, err, apperr.ErrProductNotFound, "catalog entry without a stock item")
}

func TestDynamoTransportErrorIsNotClientError(t *testing.T) {
	l, ft := newLedger(map[string]int{"p-1": 5})
	ft.err = errors.New("RequestTimeout")

	_, _, err := l.Decrement(context.Background(), "p-1", 1)
	require.Error(t, err)
	assert.False(t, apperr.IsClient(err))
}

func TestDynamoListLowStock(t *testing.T) {
	l, _ := newLedger(map[string]int{"a": 3, "b": 40, "c": 10})

	low, err := l.ListLowStock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "a", low[0].ID)
	assert.Equal(t, 10, low[1].Stock)
}
