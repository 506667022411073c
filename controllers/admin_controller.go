package controllers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

// AdminController lets administrators grant and revoke permissions.
type AdminController struct {
	db *gorm.DB
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(db *gorm.DB) *AdminController {
	return &AdminController{db: db}
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// GetPermissions lists the codenames held by a user.
func (a *AdminController) GetPermissions(ctx *gin.Context) {
	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"user_id": user.ID, "username": user.Username, "permissions": sortedCodenames(user)})
}

// SetPermissions replaces a user's permission set.
func (a *AdminController) SetPermissions(ctx *gin.Context) {
	var req permissionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request body")
		return
	}
	for _, codename := range req.Permissions {
		if !auth.IsKnownPermission(codename) {
			utils.Error(ctx, http.StatusBadRequest, 40002, "unknown permission: "+codename)
			return
		}
	}

	user, ok := a.loadUser(ctx)
	if !ok {
		return
	}

	var perms []models.Permission
	if len(req.Permissions) > 0 {
		if err := a.db.Where("codename IN ?", req.Permissions).Find(&perms).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load permissions")
			return
		}
	}
	assoc := a.db.Model(&user).Association("Permissions")
	var err error
	if len(perms) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(perms)
	}
	if err != nil {
		utils.Sugar.Errorw("failed to replace permissions", "user_id", user.ID, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to update permissions")
		return
	}
	user.Permissions = perms

	utils.Sugar.Infow("permissions updated",
		"user_id", user.ID,
		"by", middleware.CurrentIdentity(ctx).Username,
		"permissions", sortedCodenames(user))
	utils.Success(ctx, gin.H{"user_id": user.ID, "username": user.Username, "permissions": sortedCodenames(user)})
}

func (a *AdminController) loadUser(ctx *gin.Context) (models.User, bool) {
	var user models.User
	id, ok := pathID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
		return user, false
	}
	if err := a.db.Preload("Permissions").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "user not found")
			return user, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load user")
		return user, false
	}
	return user, true
}

func sortedCodenames(u models.User) []string {
	out := u.Codenames()
	sort.Strings(out)
	return out
}
