package records

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

const dynamoService = "dynamodb"

// dynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore reads records from a DynamoDB table keyed by business ID.
type DynamoStore struct {
	client  dynamoAPI
	table   string
	keyAttr string
}

// NewDynamoStore creates a DynamoStore using the default AWS credential chain.
func NewDynamoStore(ctx context.Context, cfg config.RecordsConfig) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamoStore(client, cfg.Table, cfg.KeyAttribute), nil
}

func newDynamoStore(client dynamoAPI, table, keyAttr string) *DynamoStore {
	if keyAttr == "" {
		keyAttr = "businessId"
	}
	return &DynamoStore{client: client, table: table, keyAttr: keyAttr}
}

// Get fetches one record with GetItem. A missing item yields ErrNotFound.
func (s *DynamoStore) Get(ctx context.Context, id string) (rec Record, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			metrics.ObserveUpstream(dynamoService, start, nil)
			return
		}
		metrics.ObserveUpstream(dynamoService, start, err)
	}()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			s.keyAttr: &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return Record{}, classifyDynamoError(err)
	}
	if len(out.Item) == 0 {
		return Record{}, ErrNotFound
	}

	item := maps.Clone(out.Item)
	ratingAV, hasRating := item[ratingAttribute]
	delete(item, ratingAttribute)

	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Record{}, upstream.Permanent(dynamoService, "get_item", fmt.Errorf("decode item %s: %w", id, err))
	}
	if hasRating {
		var r rating
		if err := attributevalue.Unmarshal(ratingAV, &r); err == nil {
			rec.Rating, rec.RatingText = r.num, r.text
		}
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

const ratingAttribute = "rating"

// rating accepts the shapes a rating has been stored in: a number, numeric
// or free text, or NULL. Anything else is treated as no rating.
type rating struct {
	num  *float64
	text string
}

func (r *rating) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			r.text = v.Value
			return nil
		}
		r.num = &f
	case *types.AttributeValueMemberS:
		r.text = v.Value
	}
	return nil
}

// classifyDynamoError maps DynamoDB API errors onto the upstream taxonomy.
// Schema and table errors will not change on redelivery; throttling,
// internal errors and network failures may.
func classifyDynamoError(err error) *upstream.Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException", "ValidationException", "AccessDeniedException",
			"UnrecognizedClientException":
			return upstream.Permanent(dynamoService, "get_item", err)
		}
	}
	return upstream.Transient(dynamoService, "get_item", err)
}
