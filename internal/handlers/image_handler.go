package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"server-imago/internal/images"
	"server-imago/internal/schemas"
	"server-imago/internal/utils"
)

// imageFormField is the multipart form field carrying the uploaded file.
const imageFormField = "image"

type ImageHdl interface {
	UploadImage(c *gin.Context)
	GetImage(c *gin.Context)
	DeleteImage(c *gin.Context)
	UploadAvatar(c *gin.Context)
	GetAvatar(c *gin.Context)
}

type ImageHandler struct {
	Store *images.Store
}

func NewImageHandler(store *images.Store) ImageHdl {
	return &ImageHandler{Store: store}
}

// UploadImage stores the uploaded file in the folder of the authenticated
// user. Name collisions are resolved with a numeric suffix rather than
// overwriting, and the response carries the name the file ended up under.
func (handler *ImageHandler) UploadImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	userId, _ := claims["sub"].(string)

	fileHeader, err := c.FormFile(imageFormField)
	if err != nil {
		utils.WriteAndLogError(c, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.WriteAndLogError(c, schemas.FileOperationError, http.StatusInternalServerError, err)
		return
	}
	defer file.Close()

	path, err := handler.Store.Save(file, images.UserFolder(userId), images.GetBasename(fileHeader.Filename))
	if err != nil {
		writeStoreError(c, err)
		return
	}

	utils.WriteAndLogResponse(c, &schemas.ImageDTO{Filename: images.GetBasename(path)}, http.StatusCreated)
}

// GetImage streams an image from the folder of the authenticated user.
func (handler *ImageHandler) GetImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	userId, _ := claims["sub"].(string)

	filename := c.Param(utils.FilenameKey)
	if !images.IsFilenameSafe(filename) {
		utils.WriteAndLogError(c, schemas.IllegalFileName, http.StatusBadRequest, errors.New("unsafe file name"))
		return
	}

	serveFile(c, handler.Store.GetPath(images.UserFolder(userId), filename), schemas.ImageNotFound)
}

// DeleteImage removes an image from the folder of the authenticated user.
func (handler *ImageHandler) DeleteImage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	userId, _ := claims["sub"].(string)

	filename := c.Param(utils.FilenameKey)
	if err := handler.Store.Delete(images.UserFolder(userId), filename); err != nil {
		writeStoreError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadAvatar replaces the avatar of the authenticated user. Whatever avatar
// file exists for the user, regardless of its extension, is removed before the
// new one is written; a failed removal aborts the upload.
func (handler *ImageHandler) UploadAvatar(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	userId, _ := claims["sub"].(string)

	fileHeader, err := c.FormFile(imageFormField)
	if err != nil {
		utils.WriteAndLogError(c, schemas.BadRequest, http.StatusBadRequest, err)
		return
	}

	if existing, found := handler.Store.FindAnyFormat(images.AvatarFolder, images.AvatarBase(userId)); found {
		if err := handler.Store.Delete(images.AvatarFolder, images.GetBasename(existing)); err != nil {
			utils.WriteAndLogError(c, schemas.FileOperationError, http.StatusInternalServerError, err)
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.WriteAndLogError(c, schemas.FileOperationError, http.StatusInternalServerError, err)
		return
	}
	defer file.Close()

	name := images.AvatarBase(userId) + images.GetExtension(fileHeader.Filename)
	path, err := handler.Store.Save(file, images.AvatarFolder, name)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	utils.WriteAndLogResponse(c, &schemas.ImageDTO{Filename: images.GetBasename(path)}, http.StatusOK)
}

// GetAvatar streams the avatar of the user named in the path. The route is
// public so avatars can be embedded without credentials.
func (handler *ImageHandler) GetAvatar(c *gin.Context) {
	userId := c.Param(utils.UserIdKey)

	path, found := handler.Store.FindAnyFormat(images.AvatarFolder, images.AvatarBase(userId))
	if !found {
		utils.WriteAndLogError(c, schemas.AvatarNotFound, http.StatusNotFound, errors.New("avatar not found"))
		return
	}

	c.File(path)
}

// serveFile streams the file at path or responds with notFound if it is absent.
func serveFile(c *gin.Context, path string, notFound *schemas.CustomError) {
	if _, err := os.Stat(path); err != nil {
		utils.WriteAndLogError(c, notFound, http.StatusNotFound, err)
		return
	}
	c.File(path)
}

// writeStoreError maps image store errors onto the error taxonomy.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, images.ErrUnsafeName):
		utils.WriteAndLogError(c, schemas.IllegalFileName, http.StatusBadRequest, err)
	case errors.Is(err, images.ErrExtensionNotAllowed):
		utils.WriteAndLogError(c, schemas.IllegalFileExtension, http.StatusBadRequest, err)
	case errors.Is(err, images.ErrNotFound):
		utils.WriteAndLogError(c, schemas.ImageNotFound, http.StatusNotFound, err)
	default:
		utils.WriteAndLogError(c, schemas.FileOperationError, http.StatusInternalServerError, err)
	}
}
