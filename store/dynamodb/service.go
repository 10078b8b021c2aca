// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/launchcache/model"
	"github.com/xmidt-org/launchcache/store"
)

// client captures the methods of interest from the dynamoDB API. This
// should help mock API calls as well.
type client interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Dynamo DB attribute keys
const (
	partitionAttributeKey   = "pk"
	sortAttributeKey        = "sk"
	netAttributeKey         = "net"
	dataAttributeKey        = "data"
	createdAtAttributeKey   = "created_at"
	updatedAtAttributeKey   = "updated_at"
	lastUpdatedAttributeKey = "last_updated"
	expiresAtAttributeKey   = "expires_at"
)

// Partitions of the single table.
const (
	launchPartition   = "launch"
	metadataPartition = "cache_meta"
)

const (
	// maxTransactItems is the DynamoDB limit on actions per transaction.
	maxTransactItems = 100

	// MaxWriteThroughLaunches leaves room for the metadata put in the
	// write-through transaction.
	MaxWriteThroughLaunches = maxTransactItems - 1

	// maxBatchWriteItems is the DynamoDB limit on requests per batch write.
	maxBatchWriteItems = 25

	maxUnprocessedRetries = 5
)

var errBatchTooLarge = errors.New("launch batch exceeds the dynamodb transaction limit")

var _ store.S = (*executor)(nil)

// executor satisfies store.S on top of the dynamodb client.
type executor struct {
	// c is the dynamodb client
	c client

	// tableName is the name of the dynamodb table
	tableName string

	// capacity is told about consumed capacity units per query type
	capacity func(string, float64)

	now func() time.Time
}

type launchItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Net       int64  `dynamodbav:"net"`
	Data      string `dynamodbav:"data"`
	CreatedAt int64  `dynamodbav:"created_at"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
}

type metadataItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	LastUpdated int64  `dynamodbav:"last_updated"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

func handleClientError(operation string, err error) error {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := make([]string, 0, len(tce.CancellationReasons))
		for _, r := range tce.CancellationReasons {
			reasons = append(reasons, aws.ToString(r.Code))
		}
		err = errors.WithDetails(err, "cancellationReasons", reasons)
	}
	return store.Wrap(operation, err)
}

func (d *executor) recordCapacity(queryType string, cc ...types.ConsumedCapacity) {
	for _, c := range cc {
		d.capacity(queryType, aws.ToFloat64(c.CapacityUnits))
	}
}

func (d *executor) recordCapacityPtr(queryType string, cc *types.ConsumedCapacity) {
	if cc != nil {
		d.recordCapacity(queryType, *cc)
	}
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UTC().UnixMilli(), 10)}
}

func str(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func itemKey(partition, sortKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionAttributeKey: str(partition),
		sortAttributeKey:      str(sortKey),
	}
}

// dedupe keeps the last occurrence of each ID. DynamoDB rejects a
// transaction touching the same item twice.
func dedupe(launches []model.Launch) []model.Launch {
	index := make(map[string]int, len(launches))
	result := make([]model.Launch, 0, len(launches))
	for _, l := range launches {
		if i, ok := index[l.ID]; ok {
			result[i] = l
			continue
		}
		index[l.ID] = len(result)
		result = append(result, l)
	}
	return result
}

func (d *executor) UpsertAll(ctx context.Context, launches []model.Launch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return store.Wrap("upsert", err)
	}
	launches = dedupe(launches)
	if len(launches) == 0 {
		return nil
	}
	if len(launches) > maxTransactItems {
		return store.Wrap("upsert", errors.WithDetails(errBatchTooLarge, "launches", len(launches), "limit", maxTransactItems))
	}

	items, err := d.launchUpdates(launches, d.now())
	if err != nil {
		return store.Wrap("upsert", err)
	}
	return handleClientError("upsert", d.transact(ctx, items))
}

// WriteThrough commits the launch updates and the metadata put in a single
// transaction, so the row for key only advances together with the launches.
func (d *executor) WriteThrough(ctx context.Context, key string, launches []model.Launch, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	if err := store.ValidateLaunches(launches); err != nil {
		return model.CacheMetadata{}, store.Wrap("upsert", err)
	}
	launches = dedupe(launches)
	if len(launches) > MaxWriteThroughLaunches {
		return model.CacheMetadata{}, store.Wrap("upsert",
			errors.WithDetails(errBatchTooLarge, "launches", len(launches), "limit", MaxWriteThroughLaunches))
	}

	now := d.now()
	items, err := d.launchUpdates(launches, now)
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("upsert", err)
	}
	m := model.NewCacheMetadata(key, now.UTC().Truncate(time.Millisecond), ttl)
	av, err := marshalMetadata(m)
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(d.tableName),
			Item:      av,
		},
	})

	if err := d.transact(ctx, items); err != nil {
		return model.CacheMetadata{}, handleClientError("write through", err)
	}
	return m, nil
}

func (d *executor) launchUpdates(launches []model.Launch, now time.Time) ([]types.TransactWriteItem, error) {
	at := millis(now)
	items := make([]types.TransactWriteItem, 0, len(launches)+1)
	for _, l := range launches {
		data, err := encodeLaunch(l)
		if err != nil {
			return nil, err
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(d.tableName),
				Key:       itemKey(launchPartition, l.ID),
				// created_at is only ever set by the first write of an ID
				UpdateExpression: aws.String("SET #net = :net, #data = :data, #updated = :now, #created = if_not_exists(#created, :now)"),
				ExpressionAttributeNames: map[string]string{
					"#net":     netAttributeKey,
					"#data":    dataAttributeKey,
					"#updated": updatedAtAttributeKey,
					"#created": createdAtAttributeKey,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":net":  millis(l.Net),
					":data": str(data),
					":now":  at,
				},
			},
		})
	}
	return items, nil
}

func (d *executor) transact(ctx context.Context, items []types.TransactWriteItem) error {
	out, err := d.c.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:          items,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if out != nil {
		d.recordCapacity(store.InsertType, out.ConsumedCapacity...)
	}
	return err
}

func marshalMetadata(m model.CacheMetadata) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(metadataItem{
		PK:          metadataPartition,
		SK:          m.Key,
		LastUpdated: m.LastUpdated.UnixMilli(),
		ExpiresAt:   m.ExpiresAt.UnixMilli(),
	})
}

// query walks every page of a partition.
func (d *executor) query(ctx context.Context, input *dynamodb.QueryInput, page func(*dynamodb.QueryOutput) error) error {
	input.TableName = aws.String(d.tableName)
	input.ReturnConsumedCapacity = types.ReturnConsumedCapacityTotal
	for {
		out, err := d.c.Query(ctx, input)
		if err != nil {
			return err
		}
		d.recordCapacityPtr(store.ReadType, out.ConsumedCapacity)
		if err := page(out); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func partitionQuery(partition string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": partitionAttributeKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": str(partition),
		},
	}
}

// ListOrdered reads the whole launch partition and sorts it in process. The
// partition is bounded by the refresh size, so no secondary index on net is
// kept.
func (d *executor) ListOrdered(ctx context.Context, max int) ([]model.Launch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max < 0 {
		return nil, store.Wrap("list", store.ErrNegativeMax)
	}

	var result []model.Launch
	err := d.query(ctx, partitionQuery(launchPartition), func(out *dynamodb.QueryOutput) error {
		for _, i := range out.Items {
			var item launchItem
			if err := attributevalue.UnmarshalMap(i, &item); err != nil {
				return err
			}
			l, err := decodeLaunch(item.Data)
			if err != nil {
				return err
			}
			l.CreatedAt = time.UnixMilli(item.CreatedAt).UTC()
			l.UpdatedAt = time.UnixMilli(item.UpdatedAt).UTC()
			result = append(result, l)
		}
		return nil
	})
	if err != nil {
		return nil, handleClientError("list", err)
	}

	model.SortLaunches(result)
	if len(result) > max {
		result = result[:max]
	}
	if result == nil {
		result = []model.Launch{}
	}
	return result, nil
}

func (d *executor) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	input := partitionQuery(launchPartition)
	input.Select = types.SelectCount

	var count int
	err := d.query(ctx, input, func(out *dynamodb.QueryOutput) error {
		count += int(out.Count)
		return nil
	})
	if err != nil {
		return 0, handleClientError("count", err)
	}
	return count, nil
}

// keys returns the primary keys of a partition, optionally filtered.
func (d *executor) keys(ctx context.Context, partition string, filter func(*dynamodb.QueryInput)) ([]map[string]types.AttributeValue, error) {
	input := partitionQuery(partition)
	input.ExpressionAttributeNames["#sk"] = sortAttributeKey
	input.ProjectionExpression = aws.String("#pk, #sk")
	if filter != nil {
		filter(input)
	}

	var keys []map[string]types.AttributeValue
	err := d.query(ctx, input, func(out *dynamodb.QueryOutput) error {
		for _, i := range out.Items {
			keys = append(keys, map[string]types.AttributeValue{
				partitionAttributeKey: i[partitionAttributeKey],
				sortAttributeKey:      i[sortAttributeKey],
			})
		}
		return nil
	})
	return keys, err
}

// deleteKeys removes items in chunks of batch writes, resubmitting anything
// DynamoDB reports as unprocessed.
func (d *executor) deleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) (int64, error) {
	var removed int64
	for start := 0; start < len(keys); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}

		pending := map[string][]types.WriteRequest{d.tableName: requests}
		for attempt := 0; len(pending[d.tableName]) > 0; attempt++ {
			if attempt > maxUnprocessedRetries {
				return removed, fmt.Errorf("%d deletes left unprocessed", len(pending[d.tableName]))
			}
			submitted := len(pending[d.tableName])
			out, err := d.c.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems:           pending,
				ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
			})
			if err != nil {
				return removed, err
			}
			d.recordCapacity(store.DeleteType, out.ConsumedCapacity...)
			pending = out.UnprocessedItems
			removed += int64(submitted - len(pending[d.tableName]))
		}
	}
	return removed, nil
}

func (d *executor) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := d.now().Add(-age)
	keys, err := d.keys(ctx, launchPartition, func(input *dynamodb.QueryInput) {
		input.FilterExpression = aws.String("#created < :cutoff")
		input.ExpressionAttributeNames["#created"] = createdAtAttributeKey
		input.ExpressionAttributeValues[":cutoff"] = millis(cutoff)
	})
	if err != nil {
		return 0, handleClientError("purge", err)
	}
	removed, err := d.deleteKeys(ctx, keys)
	return removed, handleClientError("purge", err)
}

func (d *executor) PurgeAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keys, err := d.keys(ctx, launchPartition, nil)
	if err != nil {
		return 0, handleClientError("purge", err)
	}
	removed, err := d.deleteKeys(ctx, keys)
	return removed, handleClientError("purge", err)
}

func (d *executor) IsValid(ctx context.Context, key string) (bool, error) {
	m, err := d.Get(ctx, key)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.ValidAt(d.now()), nil
}

func toMetadata(item metadataItem) model.CacheMetadata {
	return model.CacheMetadata{
		Key:         item.SK,
		LastUpdated: time.UnixMilli(item.LastUpdated).UTC(),
		ExpiresAt:   time.UnixMilli(item.ExpiresAt).UTC(),
	}
}

func (d *executor) Get(ctx context.Context, key string) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	out, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    itemKey(metadataPartition, key),
		ConsistentRead:         aws.Bool(true),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return model.CacheMetadata{}, handleClientError("get metadata", err)
	}
	d.recordCapacityPtr(store.ReadType, out.ConsumedCapacity)
	if len(out.Item) == 0 {
		return model.CacheMetadata{}, store.KeyNotFoundError{Key: key}
	}

	var item metadataItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return model.CacheMetadata{}, store.Wrap("get metadata", err)
	}
	return toMetadata(item), nil
}

func (d *executor) List(ctx context.Context) ([]model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []model.CacheMetadata
	err := d.query(ctx, partitionQuery(metadataPartition), func(out *dynamodb.QueryOutput) error {
		for _, i := range out.Items {
			var item metadataItem
			if err := attributevalue.UnmarshalMap(i, &item); err != nil {
				return err
			}
			result = append(result, toMetadata(item))
		}
		return nil
	})
	if err != nil {
		return nil, handleClientError("list metadata", err)
	}
	store.SortMetadata(result)
	return result, nil
}

func (d *executor) Touch(ctx context.Context, key string, ttl time.Duration) (model.CacheMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheMetadata{}, err
	}
	if err := store.ValidateTouch(key, ttl); err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}

	m := model.NewCacheMetadata(key, d.now().UTC().Truncate(time.Millisecond), ttl)
	av, err := marshalMetadata(m)
	if err != nil {
		return model.CacheMetadata{}, store.Wrap("touch", err)
	}
	out, err := d.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:              aws.String(d.tableName),
		Item:                   av,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return model.CacheMetadata{}, handleClientError("touch", err)
	}
	d.recordCapacityPtr(store.InsertType, out.ConsumedCapacity)
	return m, nil
}

func (d *executor) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := d.c.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    itemKey(metadataPartition, key),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return handleClientError("clear", err)
	}
	d.recordCapacityPtr(store.DeleteType, out.ConsumedCapacity)
	return nil
}

func (d *executor) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys, err := d.keys(ctx, metadataPartition, nil)
	if err != nil {
		return handleClientError("clear", err)
	}
	_, err = d.deleteKeys(ctx, keys)
	return handleClientError("clear", err)
}

func (d *executor) Ping(ctx context.Context) error {
	_, err := d.c.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	return handleClientError("ping", err)
}

func (d *executor) Close() error {
	return nil
}

func encodeLaunch(l model.Launch) (string, error) {
	l.CreatedAt = time.Time{}
	l.UpdatedAt = time.Time{}
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode launch %s: %w", l.ID, err)
	}
	return string(data), nil
}

func decodeLaunch(data string) (model.Launch, error) {
	var l model.Launch
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return model.Launch{}, fmt.Errorf("decode launch: %w", err)
	}
	return l, nil
}
