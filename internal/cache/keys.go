// Package cache drops stale cached views after mutations. Keys are derived
// deterministically from (namespace, subject, optional qualifier) so the
// render layer and this service always agree on what to invalidate.
package cache

// Key identifies one cached view.
type Key struct {
	Namespace string
	Subject   string
	Qualifier string
}

func (k Key) String() string {
	s := "view:" + k.Namespace + ":" + k.Subject
	if k.Qualifier != "" {
		s += ":" + k.Qualifier
	}
	return s
}

// ListingView is the cached public page of a listing.
func ListingView(listingID string) Key {
	return Key{Namespace: "listing", Subject: listingID}
}

// ReviewView is the cached rendering of one review with its tallies.
func ReviewView(reviewID string) Key {
	return Key{Namespace: "review", Subject: reviewID}
}

// UserDashboard is a user's private dashboard view.
func UserDashboard(userID string) Key {
	return Key{Namespace: "user", Subject: userID, Qualifier: "dashboard"}
}

// UserProfile is a user's public profile view.
func UserProfile(userID string) Key {
	return Key{Namespace: "user", Subject: userID, Qualifier: "profile"}
}
