package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

// DynamoDBStore implements RunStore using AWS DynamoDB
type DynamoDBStore struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB run store instance
func NewDynamoDBStore(cfg config.StorageConfig) (*DynamoDBStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := &DynamoDBStore{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}

	// Create table if it doesn't exist (for local testing)
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}

	return store, nil
}

// ensureTable creates the DynamoDB table if it doesn't exist
func (d *DynamoDBStore) ensureTable() error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
}

// RecordRun stores a sync run record in DynamoDB
func (d *DynamoDBStore) RecordRun(ctx context.Context, run models.SyncRun) error {
	item, err := dynamodbattribute.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}
	item["id"] = &dynamodb.AttributeValue{S: aws.String(run.ID)}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns retrieves runs from DynamoDB, newest first
func (d *DynamoDBStore) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	result, err := d.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	var runs []models.SyncRun
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &runs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastRun retrieves the most recent sync run
func (d *DynamoDBStore) LastRun(ctx context.Context) (*models.SyncRun, error) {
	runs, err := d.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStore) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
