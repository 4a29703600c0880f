package common

import (
	"fmt"

	"emperror.dev/errors"
)

type DBSchema struct {
	Name    string
	Schemas []string
}

var schemasToInit = make([]*DBSchema, 0)

// RegisterDBSchemas queues up the statements initializing a plugin's tables
// and indexes, ran when the core is initialized. Statements have to be
// idempotent (create table if not exists and friends).
func RegisterDBSchemas(name string, schemas ...string) {
	schemasToInit = append(schemasToInit, &DBSchema{Name: name, Schemas: schemas})
}

func initQueuedSchemas() error {
	for _, v := range schemasToInit {
		if err := initSchemas(v.Name, v.Schemas...); err != nil {
			return err
		}
	}

	return nil
}

func initSchemas(name string, schemas ...string) error {
	for i, schema := range schemas {
		_, err := DB.Exec(schema)
		if err != nil {
			return errors.WithMessage(err, fmt.Sprintf("failed initializing db schema %s[%d]", name, i))
		}
	}

	logger.Debug("Schema initialization: ", name)
	return nil
}
