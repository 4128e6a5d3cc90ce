package memory

import (
	"context"
	"sort"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

func (s *Store) Follow(ctx context.Context, followerID, followeeID uint) error {
	if followerID == followeeID {
		return repository.ErrSelfFollow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(followerID, followeeID); err != nil {
		return err
	}

	key := edgeKey{followerID, followeeID}
	if _, ok := s.edges[key]; ok {
		return nil
	}
	s.nextEdge++
	s.edges[key] = &models.Follow{
		ID:         s.nextEdge,
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.now(),
	}
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(followerID, followeeID); err != nil {
		return err
	}
	delete(s.edges, edgeKey{followerID, followeeID})
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.edges[edgeKey{followerID, followeeID}]
	return ok, nil
}

func (s *Store) ListFollowers(ctx context.Context, userID uint, page repository.PageRequest) (repository.Page[models.UserSummary], error) {
	return s.listEdges(userID, page, func(e *models.Follow) (uint, uint) { return e.FolloweeID, e.FollowerID })
}

func (s *Store) ListFollowing(ctx context.Context, userID uint, page repository.PageRequest) (repository.Page[models.UserSummary], error) {
	return s.listEdges(userID, page, func(e *models.Follow) (uint, uint) { return e.FollowerID, e.FolloweeID })
}

// listEdges walks edges whose anchor (first value of ends) is userID and
// returns the other end, in edge id order.
func (s *Store) listEdges(userID uint, page repository.PageRequest, ends func(*models.Follow) (uint, uint)) (repository.Page[models.UserSummary], error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return repository.Page[models.UserSummary]{}, repository.ErrUnknownUser
	}

	var edges []*models.Follow
	for _, e := range s.edges {
		if anchor, _ := ends(e); anchor == userID && e.ID > page.Cursor {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	edgePage := repository.NewPage(edges, page.Size, func(e *models.Follow) uint { return e.ID })
	out := repository.Page[models.UserSummary]{
		Items:      make([]models.UserSummary, 0, len(edgePage.Items)),
		NextCursor: edgePage.NextCursor,
	}
	for _, e := range edgePage.Items {
		_, other := ends(e)
		out.Items = append(out.Items, s.users[other].Summary())
	}
	return out, nil
}

func (s *Store) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for key := range s.edges {
		if key.followee == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for key := range s.edges {
		if key.follower == userID {
			n++
		}
	}
	return n, nil
}

// requireUsers must be called with s.mu held.
func (s *Store) requireUsers(ids ...uint) error {
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			return repository.ErrUnknownUser
		}
	}
	return nil
}
