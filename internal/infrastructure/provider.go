package infrastructure

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/yourusername/fundl-go/internal/domain"
	"go.uber.org/zap"
)

// provider pairs a catalog with the executor that downloads its episodes
type provider struct {
	domain.CatalogProvider
	*YTDLPExecutor
	name string
}

// Name returns the configured provider name
func (p *provider) Name() string {
	return p.name
}

// NewProvider builds the provider selected by config.Catalog.Provider
func NewProvider(config *domain.Config, executor *YTDLPExecutor, logger *zap.Logger) (domain.Provider, error) {
	var catalog domain.CatalogProvider

	switch config.Catalog.Provider {
	case domain.ProviderYTDLP, "":
		catalog = NewYTDLPCatalog(config.YTDLP.Binary, &config.Catalog, logger)
	case domain.ProviderLibrary:
		catalog = NewLibraryCatalog(afero.NewOsFs(), config.Catalog.LibraryFile)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, config.Catalog.Provider)
	}

	name := config.Catalog.Provider
	if name == "" {
		name = domain.ProviderYTDLP
	}

	return &provider{
		CatalogProvider: catalog,
		YTDLPExecutor:   executor,
		name:            name,
	}, nil
}
