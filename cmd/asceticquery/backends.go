package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gopkg.in/yaml.v3"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/config"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/finder"
	elasticquery "github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/elastic"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/memory"
	mongoquery "github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/mongo"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/postgres"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	pgxsession "github.com/krew-solutions/ascetic-query-go/asceticquery/session/pgx"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

func capabilities(backend config.Backend) (operators.Capabilities, error) {
	switch backend {
	case config.BackendMemory:
		return operators.AllOperators(operators.BackendMemory), nil
	case config.BackendPostgres:
		return postgres.Capabilities(), nil
	case config.BackendMongo:
		return mongoquery.Capabilities(), nil
	case config.BackendElastic:
		return elasticquery.Capabilities(), nil
	}
	return nil, errors.Errorf("unknown backend %q", backend)
}

// render writes what the backend would be sent for p.
func render(w io.Writer, backend config.Backend, p *plan.Plan) error {
	switch backend {
	case config.BackendMemory:
		for i, st := range p.Stages {
			if _, err := fmt.Fprintf(w, "%d. %s %+v\n", i+1, st.Kind(), st); err != nil {
				return err
			}
		}
		return nil
	case config.BackendPostgres:
		q, err := postgres.NewRenderer(nil).Render(p)
		if err != nil {
			return err
		}
		params, err := json.Marshal(q.Params)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n-- params: %s\n", q.SQL, params)
		return err
	case config.BackendMongo:
		pipeline, err := mongoquery.Render(p)
		if err != nil {
			return err
		}
		data, err := bson.MarshalExtJSONIndent(bson.D{
			{Key: "collection", Value: p.Root.Collection()},
			{Key: "pipeline", Value: pipeline},
		}, false, false, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case config.BackendElastic:
		r, err := elasticquery.Render(p)
		if err != nil {
			return err
		}
		var body any = map[string]any{"query": mustSource(r.Query)}
		if !r.CountOnly || r.Group != nil {
			src, err := r.SearchSource(1000).Source()
			if err != nil {
				return err
			}
			body = src
		}
		data, err := json.MarshalIndent(map[string]any{"index": r.Collection, "body": body}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	return errors.Errorf("unknown backend %q", backend)
}

func mustSource(q elastic.Query) any {
	src, err := q.Source()
	if err != nil {
		return err.Error()
	}
	return src
}

// openExecutor connects to the configured store. The returned func releases
// the connection.
func openExecutor(ctx context.Context, cfg config.Config, dataFile string) (finder.Executor, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		store := memory.NewStore()
		if dataFile != "" {
			if err := loadData(store, dataFile); err != nil {
				return nil, nil, err
			}
		}
		return memory.NewExecutor(store, operators.NewDefaultRegistry()), func() {}, nil
	case config.BackendPostgres:
		pool, err := pgxsession.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewExecutor(pool, nil), pool.Close, nil
	case config.BackendMongo:
		client, err := mongodriver.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect mongo")
		}
		release := func() { _ = client.Disconnect(context.Background()) }
		return mongoquery.NewExecutor(client.Database(cfg.Mongo.Database)), release, nil
	case config.BackendElastic:
		client, err := elastic.NewClient(
			elastic.SetURL(cfg.Elastic.URL),
			elastic.SetSniff(cfg.Elastic.Sniff),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect elastic")
		}
		return elasticquery.NewExecutor(client, elasticquery.WithIndexPrefix(cfg.Elastic.Index)), client.Stop, nil
	}
	return nil, nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

// loadData fills the store from a YAML document of collection name to
// records.
func loadData(store *memory.Store, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrap(err, "open data")
	}
	defer f.Close()
	var doc map[string][]map[string]any
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return errors.Wrapf(err, "decode data %s", file)
	}
	for collection, records := range doc {
		rows := make([]plan.Row, len(records))
		for i, r := range records {
			rows[i] = r
		}
		store.Insert(collection, rows...)
	}
	return nil
}

func loadCatalog(file string) (*schema.Catalog, error) {
	if file == "" {
		return nil, errors.New("no catalog given; pass --catalog or set catalog in the config")
	}
	return schema.LoadCatalogFile(file)
}
