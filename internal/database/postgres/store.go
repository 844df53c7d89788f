package postgres

import "github.com/kozaktomas/photo-cluster/internal/database"

// Store is the PostgreSQL ClusterStore: pictures and clusters share one pool.
type Store struct {
	*PictureRepository
	*ClusterRepository
}

var (
	_ database.ClusterStore    = (*Store)(nil)
	_ database.Queue           = (*QueueRepository)(nil)
	_ database.ReviewWriter    = (*ReviewRepository)(nil)
	_ database.CandidateIndex  = (*PictureRepository)(nil)
	_ database.SignatureSource = (*PictureRepository)(nil)
)

// NewStore creates the cluster store on pool
func NewStore(pool *Pool) *Store {
	return &Store{
		PictureRepository: NewPictureRepository(pool),
		ClusterRepository: NewClusterRepository(pool),
	}
}

// Register registers the PostgreSQL repositories as the active backend.
func Register(pool *Pool) *Store {
	store := NewStore(pool)
	queue := NewQueueRepository(pool)
	review := NewReviewRepository(pool)
	database.RegisterPostgresBackend(
		func() database.ClusterStore { return store },
		func() database.Queue { return queue },
		func() database.ReviewWriter { return review },
	)
	return store
}
