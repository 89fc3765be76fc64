package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
)

// ErrConflict is returned by Store.Append() if another writer stored an event
// at the same offset first.
var ErrConflict = errors.New("event offset is already occupied by a concurrent writer")

// API is the subset of the DynamoDB client used by the store.
type API interface {
	dynamodb.QueryAPIClient

	PutItem(
		ctx context.Context,
		in *dynamodb.PutItemInput,
		options ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// item is the DynamoDB representation of a single event.
//
// The table's partition key is "pid" (string) and its sort key is "offset"
// (number).
type item struct {
	PersistenceID string `dynamodbav:"pid"`
	Offset        uint64 `dynamodbav:"offset"`
	MediaType     string `dynamodbav:"media_type"`
	Data          []byte `dynamodbav:"data"`
}

// Store is an implementation of store.Store that persists events in a
// DynamoDB table.
type Store struct {
	client API
	table  string

	m      sync.RWMutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns a store that uses the given table.
func New(client API, table string) *Store {
	return &Store{
		client: client,
		table:  table,
	}
}

// Append appends an event to the end of the stream identified by id.
//
// It returns ErrConflict if another writer appended to the same stream
// between the offset being determined and the event being stored.
func (s *Store) Append(
	ctx context.Context,
	id string,
	p marshalkit.Packet,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return store.ErrClosed
	}

	offset, err := s.nextOffset(ctx, id)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(item{
		PersistenceID: id,
		Offset:        offset,
		MediaType:     p.MediaType,
		Data:          p.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#offset)"),
		ExpressionAttributeNames: map[string]string{
			"#offset": "offset",
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrConflict
	}

	return err
}

// nextOffset returns the offset of the next event in the stream identified by
// id.
func (s *Store) nextOffset(ctx context.Context, id string) (uint64, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pid = :pid"),
		ExpressionAttributeNames: map[string]string{
			"#pid":    "pid",
			"#offset": "offset",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: id},
		},
		ProjectionExpression: aws.String("#offset"),
		ScanIndexForward:     aws.Bool(false),
		ConsistentRead:       aws.Bool(true),
		Limit:                aws.Int32(1),
	})
	if err != nil {
		return 0, err
	}

	if len(out.Items) == 0 {
		return 0, nil
	}

	n, ok := out.Items[0]["offset"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("stream %q has an item with a missing or non-numeric offset", id)
	}

	offset, err := strconv.ParseUint(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream %q has an item with an invalid offset: %w", id, err)
	}

	return offset + 1, nil
}

// ReadAll returns every event in the stream identified by id, in the order
// they were appended.
func (s *Store) ReadAll(ctx context.Context, id string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pid = :pid"),
		ExpressionAttributeNames: map[string]string{
			"#pid": "pid",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})

	var records []store.Record

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}

		for _, it := range items {
			records = append(records, store.Record{
				PersistenceID: id,
				Offset:        it.Offset,
				Packet: marshalkit.Packet{
					MediaType: it.MediaType,
					Data:      it.Data,
				},
			})
		}
	}

	return records, nil
}

// Close closes the store. It does not affect the underlying client.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.closed = true

	return nil
}
