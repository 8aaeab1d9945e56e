package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rx-reader/internal/domain"
)

const (
	skMeta      = "META#"
	skPrefixMsg = "MSG#"
	notExists   = "attribute_not_exists(PK) AND attribute_not_exists(SK)"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps every record kind in one table keyed by PK/SK.
//
//	COUNTER#<kind>      META#             seq counter, bumped with ADD
//	<KIND>#<id>         META#             the record
//	USERNAME#<name>     META#             unique username claim
//	PRESCRIPTION#<id>   MSG#<padded id>   message copy for ordered listing
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: func() time.Time { return time.Now().UTC() }}, nil
}

func recordPK(k kind, id int64) string {
	return strings.ToUpper(string(k)) + "#" + strconv.FormatInt(id, 10)
}

func counterPK(k kind) string {
	return "COUNTER#" + string(k)
}

func usernamePK(username string) string {
	return "USERNAME#" + username
}

// msgSK zero-pads the id so lexical SK order equals insertion order.
func msgSK(id int64) string {
	return fmt.Sprintf("%s%020d", skPrefixMsg, id)
}

func (s *DynamoStore) key(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

func (s *DynamoStore) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "repository.dynamodb."+op,
		trace.WithAttributes(attribute.String("db.system", "dynamodb"), attribute.String("db.table", s.tableName)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// nextID atomically increments the per-kind counter item.
func (s *DynamoStore) nextID(ctx context.Context, k kind) (int64, error) {
	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(counterPK(k)),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("repository: next %s id: %w", k, err)
	}
	if out == nil {
		return 0, fmt.Errorf("repository: next %s id: empty response", k)
	}
	id, err := int64Attr(out.Attributes, "seq")
	if err != nil {
		return 0, fmt.Errorf("repository: next %s id: %w", k, err)
	}
	return id, nil
}

func (s *DynamoStore) getRecord(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

func (s *DynamoStore) putRecord(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(notExists),
	})
	return err
}

// ---- users

func (s *DynamoStore) CreateUser(ctx context.Context, u domain.User) (_ domain.User, err error) {
	ctx, span := s.startSpan(ctx, "create_user")
	defer func() { endSpan(span, err) }()

	if err := validateUser(u); err != nil {
		return domain.User{}, err
	}
	id, err := s.nextID(ctx, kindUser)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	claim := s.key(usernamePK(u.Username))
	claim["userId"] = numAttr(id)

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(s.tableName), Item: claim, ConditionExpression: aws.String(notExists)}},
			{Put: &types.Put{TableName: aws.String(s.tableName), Item: userItem(u), ConditionExpression: aws.String(notExists)}},
		},
	})
	if err != nil {
		if isConditionFailure(err, 0) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("repository: CreateUser: %w", err)
	}
	return u, nil
}

func (s *DynamoStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	item, err := s.getRecord(ctx, recordPK(kindUser, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser %d: %w", id, err)
	}
	return itemToUser(item)
}

func (s *DynamoStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	claim, err := s.getRecord(ctx, usernamePK(username))
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByUsername %q: %w", username, err)
	}
	id, err := int64Attr(claim, "userId")
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUserByUsername %q: %w", username, err)
	}
	return s.GetUser(ctx, id)
}

// ---- prescriptions

func (s *DynamoStore) CreatePrescription(ctx context.Context, p domain.Prescription) (_ domain.Prescription, err error) {
	ctx, span := s.startSpan(ctx, "create_prescription")
	defer func() { endSpan(span, err) }()

	id, err := s.nextID(ctx, kindPrescription)
	if err != nil {
		return domain.Prescription{}, err
	}
	p.ID = id
	p.CreatedAt = s.now()
	if err := s.putRecord(ctx, prescriptionItem(p)); err != nil {
		return domain.Prescription{}, fmt.Errorf("repository: CreatePrescription: %w", err)
	}
	return p, nil
}

func (s *DynamoStore) GetPrescription(ctx context.Context, id int64) (domain.Prescription, error) {
	item, err := s.getRecord(ctx, recordPK(kindPrescription, id))
	if err != nil {
		return domain.Prescription{}, fmt.Errorf("repository: GetPrescription %d: %w", id, err)
	}
	return itemToPrescription(item)
}

// ---- messages

// CreateMessage writes the record and, for prescription messages, the
// listing copy in one transaction.
func (s *DynamoStore) CreateMessage(ctx context.Context, m domain.Message) (_ domain.Message, err error) {
	ctx, span := s.startSpan(ctx, "create_message")
	defer func() { endSpan(span, err) }()

	if err := validateMessage(m); err != nil {
		return domain.Message{}, err
	}
	id, err := s.nextID(ctx, kindMessage)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = id
	m.CreatedAt = s.now()

	if m.PrescriptionID == nil {
		if err := s.putRecord(ctx, messageItem(recordPK(kindMessage, id), skMeta, m)); err != nil {
			return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
		}
		return m, nil
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                messageItem(recordPK(kindMessage, id), skMeta, m),
					ConditionExpression: aws.String(notExists),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                messageItem(recordPK(kindPrescription, *m.PrescriptionID), msgSK(id), m),
					ConditionExpression: aws.String(notExists),
				},
			},
		},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	return m, nil
}

func (s *DynamoStore) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	item, err := s.getRecord(ctx, recordPK(kindMessage, id))
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: GetMessage %d: %w", id, err)
	}
	return itemToMessage(item)
}

// ListMessagesByPrescription pages through the listing copies in SK order.
func (s *DynamoStore) ListMessagesByPrescription(ctx context.Context, prescriptionID int64) (_ []domain.Message, err error) {
	ctx, span := s.startSpan(ctx, "list_messages")
	defer func() { endSpan(span, err) }()

	var (
		msgs  []domain.Message
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: recordPK(kindPrescription, prescriptionID)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessagesByPrescription query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListMessagesByPrescription unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// ---- feedback

func (s *DynamoStore) CreateFeedback(ctx context.Context, f domain.Feedback) (_ domain.Feedback, err error) {
	ctx, span := s.startSpan(ctx, "create_feedback")
	defer func() { endSpan(span, err) }()

	if err := validateFeedback(f); err != nil {
		return domain.Feedback{}, err
	}
	id, err := s.nextID(ctx, kindFeedback)
	if err != nil {
		return domain.Feedback{}, err
	}
	f.ID = id
	f.CreatedAt = s.now()
	if err := s.putRecord(ctx, feedbackItem(f)); err != nil {
		return domain.Feedback{}, fmt.Errorf("repository: CreateFeedback: %w", err)
	}
	return f, nil
}

func (s *DynamoStore) GetFeedback(ctx context.Context, id int64) (domain.Feedback, error) {
	item, err := s.getRecord(ctx, recordPK(kindFeedback, id))
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("repository: GetFeedback %d: %w", id, err)
	}
	return itemToFeedback(item)
}

// isConditionFailure reports whether the transaction was cancelled because
// the condition on item idx failed.
func isConditionFailure(err error, idx int) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	if idx >= len(tce.CancellationReasons) {
		return false
	}
	return aws.ToString(tce.CancellationReasons[idx].Code) == "ConditionalCheckFailed"
}

// ---- item codecs

func userItem(u domain.User) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: recordPK(kindUser, u.ID)},
		"SK":       &types.AttributeValueMemberS{Value: skMeta},
		"id":       numAttr(u.ID),
		"username": &types.AttributeValueMemberS{Value: u.Username},
		"password": &types.AttributeValueMemberS{Value: u.Password},
	}
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.User{}, err
	}
	username, err := strAttr(item, "username")
	if err != nil {
		return domain.User{}, err
	}
	password, _ := strAttr(item, "password") // allow empty
	return domain.User{ID: id, Username: username, Password: password}, nil
}

func prescriptionItem(p domain.Prescription) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: recordPK(kindPrescription, p.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"id":        numAttr(p.ID),
		"createdAt": timeAttr(p.CreatedAt),
	}
	if p.UserID != nil {
		item["userId"] = numAttr(*p.UserID)
	}
	if p.ImageBase64 != "" {
		item["imageBase64"] = &types.AttributeValueMemberS{Value: p.ImageBase64}
	}
	if p.ImageKey != "" {
		item["imageKey"] = &types.AttributeValueMemberS{Value: p.ImageKey}
	}
	return item
}

func itemToPrescription(item map[string]types.AttributeValue) (domain.Prescription, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Prescription{}, err
	}
	created, err := timeFromAttr(item, "createdAt")
	if err != nil {
		return domain.Prescription{}, err
	}
	p := domain.Prescription{ID: id, CreatedAt: created}
	p.UserID, err = optionalInt64Attr(item, "userId")
	if err != nil {
		return domain.Prescription{}, err
	}
	p.ImageBase64, _ = strAttr(item, "imageBase64")
	p.ImageKey, _ = strAttr(item, "imageKey")
	return p, nil
}

func messageItem(pk, sk string, m domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pk},
		"SK":        &types.AttributeValueMemberS{Value: sk},
		"id":        numAttr(m.ID),
		"type":      &types.AttributeValueMemberS{Value: string(m.Type)},
		"content":   &types.AttributeValueMemberS{Value: m.Content},
		"createdAt": timeAttr(m.CreatedAt),
	}
	if m.PrescriptionID != nil {
		item["prescriptionId"] = numAttr(*m.PrescriptionID)
	}
	if len(m.Metadata) > 0 {
		item["metadata"] = &types.AttributeValueMemberS{Value: string(m.Metadata)}
	}
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	typ, err := strAttr(item, "type")
	if err != nil {
		return domain.Message{}, err
	}
	content, _ := strAttr(item, "content") // allow empty
	created, err := timeFromAttr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	m := domain.Message{ID: id, Type: domain.MessageType(typ), Content: content, CreatedAt: created}
	m.PrescriptionID, err = optionalInt64Attr(item, "prescriptionId")
	if err != nil {
		return domain.Message{}, err
	}
	if meta, err := strAttr(item, "metadata"); err == nil && meta != "" {
		m.Metadata = json.RawMessage(meta)
	}
	return m, nil
}

func feedbackItem(f domain.Feedback) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: recordPK(kindFeedback, f.ID)},
		"SK":         &types.AttributeValueMemberS{Value: skMeta},
		"id":         numAttr(f.ID),
		"messageId":  numAttr(f.MessageID),
		"isAccurate": &types.AttributeValueMemberBOOL{Value: f.IsAccurate},
		"createdAt":  timeAttr(f.CreatedAt),
	}
}

func itemToFeedback(item map[string]types.AttributeValue) (domain.Feedback, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Feedback{}, err
	}
	msgID, err := int64Attr(item, "messageId")
	if err != nil {
		return domain.Feedback{}, err
	}
	accurate, ok := item["isAccurate"].(*types.AttributeValueMemberBOOL)
	if !ok {
		return domain.Feedback{}, errors.New(`repository: attribute "isAccurate" is not a bool`)
	}
	created, err := timeFromAttr(item, "createdAt")
	if err != nil {
		return domain.Feedback{}, err
	}
	return domain.Feedback{ID: id, MessageID: msgID, IsAccurate: accurate.Value, CreatedAt: created}, nil
}

func numAttr(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func timeAttr(t time.Time) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func optionalInt64Attr(item map[string]types.AttributeValue, key string) (*int64, error) {
	if _, ok := item[key]; !ok {
		return nil, nil
	}
	v, err := int64Attr(item, key)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func timeFromAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
