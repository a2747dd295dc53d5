package model

import "time"

// User is an authenticated identity. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AuthorRef is the populated form of a user reference inside a post.
type AuthorRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    AuthorRef `json:"author"`
	Tags      []string  `json:"tags"`
	Comments  []Comment `json:"comments"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"-"`
}

type Comment struct {
	ID        string    `json:"id"`
	User      AuthorRef `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// PrependComment puts c at index 0, keeping the relative order of the rest.
func (p *Post) PrependComment(c Comment) {
	p.Comments = append([]Comment{c}, p.Comments...)
}

// ToggleLike removes userID from the like set if present, adds it otherwise.
// It reports whether the post is liked by userID afterwards.
func (p *Post) ToggleLike(userID string) bool {
	for i, id := range p.Likes {
		if id == userID {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			return false
		}
	}
	p.Likes = append(p.Likes, userID)
	return true
}

// LikedBy reports whether userID is in the like set.
func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalPosts  int64  `json:"totalPosts"`
}
