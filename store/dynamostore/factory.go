package dynamostore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dogmatiq/journal/store"
)

// ConfigFactory returns a store.Factory that builds a DynamoDB client from
// the default AWS configuration sources and stores events in the given table.
//
// optFns are passed to config.LoadDefaultConfig().
func ConfigFactory(
	table string,
	optFns ...func(*config.LoadOptions) error,
) store.Factory {
	return func(ctx context.Context) (store.Store, error) {
		cfg, err := config.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		return New(dynamodb.NewFromConfig(cfg), table), nil
	}
}
