// Package dynamo keeps per-product stock counters in a DynamoDB table
// (partition key product_id, number attribute stock). Product details still
// come from the catalog store.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/order-inventory/internal/apperr"
	"github.com/ariefcatur/order-inventory/internal/catalog"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the part of *dynamodb.Client the ledger calls.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// NewClient loads the default AWS config chain for region.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

type stockItem struct {
	ProductID string `dynamodbav:"product_id"`
	Stock     int    `dynamodbav:"stock"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

type Ledger struct {
	client  API
	table   string
	catalog catalog.ProductStore
	now     func() time.Time
}

func NewLedger(client API, table string, products catalog.ProductStore) *Ledger {
	return &Ledger{client: client, table: table, catalog: products, now: time.Now}
}

func (l *Ledger) key(productID string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (l *Ledger) update(ctx context.Context, productID, expr, cond string, qty int, rv types.ReturnValue) (*dynamodb.UpdateItemOutput, error) {
	key, err := l.key(productID)
	if err != nil {
		return nil, err
	}
	qtyAV, _ := attributevalue.Marshal(qty)
	nowAV, _ := attributevalue.Marshal(l.now().UTC().Format(time.RFC3339))

	return l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.table),
		Key:                 key,
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#stock": "stock",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": qtyAV,
			":now": nowAV,
		},
		ReturnValues:                        rv,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
}

func stockFrom(item map[string]types.AttributeValue) (int, error) {
	var si stockItem
	if err := attributevalue.UnmarshalMap(item, &si); err != nil {
		return 0, fmt.Errorf("unmarshal item: %w", err)
	}
	return si.Stock, nil
}

const (
	exprDecrement = "SET #stock = #stock - :qty, updated_at = :now"
	exprIncrement = "SET #stock = #stock + :qty, updated_at = :now"
	exprSet       = "SET #stock = :qty, updated_at = :now"

	condExists     = "attribute_exists(product_id)"
	condSufficient = "attribute_exists(product_id) AND #stock >= :qty"
)

// Decrement relies on the condition expression for atomicity. On a failed
// condition the old item comes back in the exception, which tells a missing
// product from a short one without a second read.
func (l *Ledger) Decrement(ctx context.Context, productID string, amount int) (int, bool, error) {
	out, err := l.update(ctx, productID, exprDecrement, condSufficient, amount, types.ReturnValueUpdatedNew)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return 0, false, apperr.ProductNotFound(productID)
			}
			current, err := stockFrom(ccf.Item)
			return current, false, err
		}
		return 0, false, fmt.Errorf("dynamodb decrement %s: %w", productID, err)
	}
	remaining, err := stockFrom(out.Attributes)
	return remaining, err == nil, err
}

func (l *Ledger) Increment(ctx context.Context, productID string, amount int) (int, error) {
	out, err := l.update(ctx, productID, exprIncrement, condExists, amount, types.ReturnValueUpdatedNew)
	if err != nil {
		return 0, l.mapErr("increment", productID, err)
	}
	return stockFrom(out.Attributes)
}

func (l *Ledger) Set(ctx context.Context, productID string, qty int) (int, error) {
	out, err := l.update(ctx, productID, exprSet, condExists, qty, types.ReturnValueUpdatedOld)
	if err != nil {
		return 0, l.mapErr("set", productID, err)
	}
	return stockFrom(out.Attributes)
}

func (l *Ledger) mapErr(op, productID string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return apperr.ProductNotFound(productID)
	}
	return fmt.Errorf("dynamodb %s %s: %w", op, productID, err)
}

// Read merges catalog details with the stock held here. ConsistentRead keeps
// the pre-check close to what the conditional write will see.
func (l *Ledger) Read(ctx context.Context, productID string) (catalog.Product, error) {
	p, err := l.catalog.FindProduct(ctx, productID)
	if err != nil {
		return catalog.Product{}, err
	}
	key, err := l.key(productID)
	if err != nil {
		return catalog.Product{}, err
	}
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return catalog.Product{}, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return catalog.Product{}, apperr.ProductNotFound(productID)
	}
	if p.Stock, err = stockFrom(out.Item); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// FindProduct lets the ledger back catalog.CachedProducts, so cached reads
// see the stock held here rather than the catalog's column.
func (l *Ledger) FindProduct(ctx context.Context, productID string) (catalog.Product, error) {
	return l.Read(ctx, productID)
}

// ListLowStock scans the stock table; the table holds one small item per
// product so a filtered scan is acceptable for an admin listing.
func (l *Ledger) ListLowStock(ctx context.Context, threshold int) ([]catalog.Product, error) {
	tAV, _ := attributevalue.Marshal(threshold)
	pager := dynamodb.NewScanPaginator(l.client, &dynamodb.ScanInput{
		TableName:                 aws.String(l.table),
		FilterExpression:          aws.String("#stock <= :t"),
		ExpressionAttributeNames:  map[string]string{"#stock": "stock"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": tAV},
	})

	out := []catalog.Product{}
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", err)
		}
		for _, item := range page.Items {
			var si stockItem
			if err := attributevalue.UnmarshalMap(item, &si); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			p, err := l.catalog.FindProduct(ctx, si.ProductID)
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !p.Active() {
				continue
			}
			p.Stock = si.Stock
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, nil
}
