// Package store composes the persistence interfaces of the runtime, the
// event log and the three deal workflows into one Store.
//
// store/memory keeps everything in process and is the fake used by tests.
// store/postgres is the durable backend:
//
//	s, err := postgres.New(ctx, cfg.Database.URL)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
//	eng, err := engine.New(s)
package store
