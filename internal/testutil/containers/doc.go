// Package containers starts the external services livemon integration
// tests talk to: a Mosquitto broker for the MQTT push transport, MySQL for
// notification history and ntfy for shoutrrr delivery.
//
// Files that start containers carry the "integration" build tag, so they
// only compile with:
//
//	go test -tags=integration ./...
//
// A package usually starts one container per test, or one per package
// from TestMain when setup is slow (MySQL):
//
//	func TestMain(m *testing.M) {
//	    db, err := containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = db.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
//nolint:misspell // Mosquitto is the official Eclipse project name
package containers
