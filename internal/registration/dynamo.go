package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ignite/domainwatch/internal/domain"
)

const (
	regPrefix   = "REG#"
	claimPrefix = "ACTIVE#"
	regSK       = "META"
	claimSK     = "CLAIM"
)

// DynamoDBAPI is the subset of the DynamoDB client the store calls.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoRegistration is one registration row. The active (domain, email)
// pair is guarded by a separate claim item keyed ACTIVE#domain#email that
// exists only while the row is pending.
type dynamoRegistration struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	ID         string `dynamodbav:"ID"`
	Domain     string `dynamodbav:"Domain"`
	Email      string `dynamodbav:"Email"`
	Notified   bool   `dynamodbav:"Notified"`
	CreatedAt  int64  `dynamodbav:"CreatedAt"`
	NotifiedAt int64  `dynamodbav:"NotifiedAt,omitempty"`
}

type dynamoClaim struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	RegistrationID string `dynamodbav:"RegistrationID"`
}

func (r dynamoRegistration) toDomain() domain.Registration {
	reg := domain.Registration{
		ID:        r.ID,
		Domain:    r.Domain,
		Email:     r.Email,
		Notified:  r.Notified,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.NotifiedAt != 0 {
		t := time.UnixMilli(r.NotifiedAt).UTC()
		reg.NotifiedAt = &t
	}
	return reg
}

// claimKey length-prefixes the domain so a '#' inside either part cannot
// make two different pairs collide.
func claimKey(domainName, email string) string {
	return claimPrefix + strconv.Itoa(len(domainName)) + "#" + domainName + "#" + email
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// DynamoStore keeps registrations in a single PK/SK table.
type DynamoStore struct {
	api       DynamoDBAPI
	tableName string
	now       func() time.Time
}

// OpenDynamo loads AWS credentials from the default chain.
func OpenDynamo(ctx context.Context, tableName, region string) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storeErr("open", fmt.Errorf("loading AWS config: %w", err))
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(api DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}
}

// Register implements Store. The claim item and the row are written in one
// transaction, so a duplicate pair cancels both.
func (s *DynamoStore) Register(ctx context.Context, domainName, email string) (RegisterResult, error) {
	d := domain.NormalizeDomain(domainName)
	e := domain.NormalizeEmail(email)
	if d == "" || e == "" {
		return RegisterResult{}, storeErr("register", errors.New("domain and email are required"))
	}

	item := dynamoRegistration{
		ID:        uuid.New().String(),
		Domain:    d,
		Email:     e,
		CreatedAt: s.now().UTC().UnixMilli(),
	}
	item.PK, item.SK = regPrefix+item.ID, regSK

	regAV, err := attributevalue.MarshalMap(item)
	if err != nil {
		return RegisterResult{}, storeErr("register", fmt.Errorf("marshaling item: %w", err))
	}
	claimAV, err := attributevalue.MarshalMap(dynamoClaim{PK: claimKey(d, e), SK: claimSK, RegistrationID: item.ID})
	if err != nil {
		return RegisterResult{}, storeErr("register", fmt.Errorf("marshaling claim: %w", err))
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                claimAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                regAV,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err == nil {
		return RegisterResult{Created: true, Registration: item.toDomain()}, nil
	}
	if !claimConflict(err) {
		return RegisterResult{}, storeErr("register", err)
	}

	existing, err := s.activeFor(ctx, d, e)
	if err != nil {
		return RegisterResult{}, storeErr("register", err)
	}
	return RegisterResult{Created: false, Registration: existing}, nil
}

// claimConflict reports whether the transaction failed because the claim
// item already existed.
func claimConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) == 0 {
		return false
	}
	return aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

func (s *DynamoStore) activeFor(ctx context.Context, d, e string) (domain.Registration, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(claimKey(d, e), claimSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Registration{}, err
	}
	if out.Item == nil {
		return domain.Registration{}, errors.New("active claim vanished during insert")
	}
	var claim dynamoClaim
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return domain.Registration{}, fmt.Errorf("unmarshaling claim: %w", err)
	}
	row, err := s.getRow(ctx, claim.RegistrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	return row.toDomain(), nil
}

func (s *DynamoStore) getRow(ctx context.Context, id string) (dynamoRegistration, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(regPrefix+id, regSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return dynamoRegistration{}, err
	}
	if out.Item == nil {
		return dynamoRegistration{}, ErrNotFound
	}
	var row dynamoRegistration
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return dynamoRegistration{}, fmt.Errorf("unmarshaling item: %w", err)
	}
	return row, nil
}

// ListPending implements Store. Rows come back from a full scan and are
// ordered by creation time, then id.
func (s *DynamoStore) ListPending(ctx context.Context) ([]domain.Registration, error) {
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix) AND Notified = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: regPrefix},
			":false":  &types.AttributeValueMemberBOOL{Value: false},
		},
		ConsistentRead: aws.Bool(true),
	})

	var out []domain.Registration
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list_pending", err)
		}
		for _, item := range page.Items {
			var row dynamoRegistration
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, storeErr("list_pending", fmt.Errorf("unmarshaling item: %w", err))
			}
			if row.Notified || !strings.HasPrefix(row.PK, regPrefix) {
				continue
			}
			out = append(out, row.toDomain())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkNotified implements Store. The row update and the claim release share
// one transaction. The claim is only deleted while it still points at this
// row, so a newer registration for the same pair keeps its claim.
func (s *DynamoStore) MarkNotified(ctx context.Context, id string) error {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return storeErr("mark_notified", err)
	}
	if row.Notified {
		return nil
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(s.tableName),
				Key:                 itemKey(regPrefix+id, regSK),
				UpdateExpression:    aws.String("SET Notified = :true, NotifiedAt = if_not_exists(NotifiedAt, :now)"),
				ConditionExpression: aws.String("attribute_exists(PK)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":true": &types.AttributeValueMemberBOOL{Value: true},
					":now":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.now().UTC().UnixMilli())},
				},
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(s.tableName),
				Key:                 itemKey(claimKey(row.Domain, row.Email), claimSK),
				ConditionExpression: aws.String("attribute_not_exists(PK) OR RegistrationID = :id"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id": &types.AttributeValueMemberS{Value: id},
				},
			}},
		},
	})
	if err != nil {
		return storeErr("mark_notified", err)
	}
	return nil
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, id string) (domain.Registration, error) {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return domain.Registration{}, storeErr("get", err)
	}
	return row.toDomain(), nil
}

// Ping implements Store.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	return storeErr("ping", err)
}

// Close implements Store.
func (s *DynamoStore) Close() error { return nil }
