package service

import "github.com/acorvin/gamenight/internal/model"

// Access policy, consulted by the services before any privileged
// operation.

// canMutate reports whether the identity may update or delete the poll:
// the poll's creator or any admin.
func canMutate(identity model.Identity, poll *model.Poll) bool {
	return identity.IsAdmin || identity.ID == poll.CreatedBy
}

// canViewVoters reports whether the identity may see who voted on the
// poll. Voter lists are private to the creator and admins.
func canViewVoters(identity model.Identity, poll *model.Poll) bool {
	return canMutate(identity, poll)
}

// canChangeRole reports whether actingID may change targetID's admin
// flag. Nobody may change their own role, admins included.
func canChangeRole(actingID, targetID string) bool {
	return actingID != targetID
}
