package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	mock.Mock
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	args := m.Called(ctx, className)
	return args.Bool(0), args.Error(1)
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	args := m.Called(ctx, class)
	return args.Error(0)
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	args := m.Called(ctx, className)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Class), args.Error(1)
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	args := m.Called(ctx, className, property)
	return args.Error(0)
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, "Chunks").Return(false, nil)

	var created *models.Class
	client.On("CreateClass", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.Class)
	}).Return(nil)

	require.NoError(t, EnsureSchema(context.Background(), client, "Chunks"))
	require.NotNil(t, created)

	assert.Equal(t, "Chunks", created.Class)
	assert.Equal(t, "none", created.Vectorizer)
	assert.Equal(t, map[string]interface{}{"distance": "cosine"}, created.VectorIndexConfig)

	byName := map[string]*models.Property{}
	for _, p := range created.Properties {
		byName[p.Name] = p
	}
	for _, name := range []string{PropDocumentID, PropChunkID, PropKind, PropRevision} {
		require.Contains(t, byName, name)
		assert.Equal(t, "field", byName[name].Tokenization, name)
	}
	assert.Equal(t, []string{"int"}, byName[PropPosition].DataType)
}

func TestEnsureSchema_DefaultClassName(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, DefaultClass).Return(false, nil)
	client.On("CreateClass", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, EnsureSchema(context.Background(), client, ""))
	client.AssertExpectations(t)
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	existing := &models.Class{
		Class: DefaultClass,
		Properties: []*models.Property{
			{Name: PropContent, DataType: []string{"text"}},
			{Name: PropDocumentID, DataType: []string{"text"}},
			{Name: PropChunkID, DataType: []string{"text"}},
			{Name: PropPosition, DataType: []string{"int"}},
		},
	}

	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, DefaultClass).Return(true, nil)
	client.On("GetClass", mock.Anything, DefaultClass).Return(existing, nil)

	var added []string
	client.On("AddProperty", mock.Anything, DefaultClass, mock.Anything).Run(func(args mock.Arguments) {
		added = append(added, args.Get(2).(*models.Property).Name)
	}).Return(nil)

	require.NoError(t, EnsureSchema(context.Background(), client, DefaultClass))

	client.AssertNotCalled(t, "CreateClass", mock.Anything, mock.Anything)
	assert.Equal(t, []string{PropStart, PropEnd, PropKind, PropSummary, PropRevision}, added)
}

func TestEnsureSchema_Errors(t *testing.T) {
	t.Run("Exists check fails", func(t *testing.T) {
		client := new(MockSchemaClient)
		client.On("ClassExists", mock.Anything, DefaultClass).Return(false, errors.New("connection refused"))
		assert.ErrorContains(t, EnsureSchema(context.Background(), client, DefaultClass), "connection refused")
	})

	t.Run("Add property fails", func(t *testing.T) {
		client := new(MockSchemaClient)
		client.On("ClassExists", mock.Anything, DefaultClass).Return(true, nil)
		client.On("GetClass", mock.Anything, DefaultClass).Return(&models.Class{Class: DefaultClass}, nil)
		client.On("AddProperty", mock.Anything, DefaultClass, mock.Anything).Return(errors.New("forbidden"))
		assert.ErrorContains(t, EnsureSchema(context.Background(), client, DefaultClass), "forbidden")
	})
}
