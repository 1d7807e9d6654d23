// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Services is a pointer because WAFFLE passes DBDeps by value to each
// hook; Startup and Shutdown must see the same runner and dispatcher.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         redis.UniversalClient // nil when redis_addr is blank

	Services *Services
}
