package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

const DefaultClass = "DocumentChunk"

const (
	PropContent    = "content"
	PropDocumentID = "documentId"
	PropChunkID    = "chunkId"
	PropPosition   = "position"
	PropStart      = "start"
	PropEnd        = "end"
	PropKind       = "kind"
	PropSummary    = "summary"
	PropRevision   = "revision"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func exact(name string) *models.Property {
	return &models.Property{Name: name, DataType: []string{"text"}, Tokenization: "field"}
}

func SchemaProperties() []*models.Property {
	return []*models.Property{
		{Name: PropContent, DataType: []string{"text"}},
		exact(PropDocumentID),
		exact(PropChunkID),
		{Name: PropPosition, DataType: []string{"int"}},
		{Name: PropStart, DataType: []string{"int"}},
		{Name: PropEnd, DataType: []string{"int"}},
		exact(PropKind),
		{Name: PropSummary, DataType: []string{"text"}},
		exact(PropRevision),
	}
}

// EnsureSchema creates the chunk class with cosine distance when missing and
// adds any properties an older class lacks.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	if className == "" {
		className = DefaultClass
	}
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := SchemaProperties()

	if !exists {
		class := &models.Class{
			Class:             className,
			Description:       "A chunk of an ingested document",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
