package node

import (
	"encoding/json"
	"errors"
	"fmt"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"harnsnode/pkg/apis"
	"harnsnode/pkg/apis/response"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"io"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"net/http"
	"strings"
)

type ModuleList struct {
	Modules []*runtime.ModuleMeta `json:"modules"`
}

type ParameterList struct {
	Parameters []runtime.ParameterMeta `json:"parameters"`
}

// WriteRequest is the body of a parameter PUT.
type WriteRequest struct {
	Value interface{} `json:"value"`
}

func InstallHandler(group *gin.RouterGroup, n *Node) {
	group.GET("/node", getNodeMeta(n))
	group.GET("/modules", listModules(n))
	group.GET("/modules/:module", getModule(n))
	group.GET("/modules/:module/parameters", listParameters(n))
	group.GET("/modules/:module/parameters/:param", readParameter(n))
	group.PUT("/modules/:module/parameters/:param", writeParameter(n))
	group.PATCH("/modules/:module/parameters/:param", patchParameter(n))
}

func getNodeMeta(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := n.Meta()
		c.Header(apis.ETag, meta.GetVersion())
		if match := c.GetHeader(apis.IfNoneMatch); len(match) > 0 && match == meta.GetVersion() {
			c.Status(http.StatusNotModified)
			return
		}
		c.JSON(http.StatusOK, meta)
	}
}

func listModules(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		query := c.Request.URL.Query()
		filter := runtime.ModuleFilter{}
		if v := query.Get(apis.Filter); len(v) > 0 {
			if err := json.Unmarshal([]byte(v), &filter); err != nil {
				c.JSON(response.ErrMalformedJSON.Status(), response.NewMultiError(response.ErrMalformedJSON))
				return
			}
		}
		if class := query.Get(apis.Class); len(class) > 0 {
			filter.Class = class
		}
		c.JSON(http.StatusOK, &ModuleList{Modules: n.ListModules(&filter)})
	}
}

func getModule(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := n.Module(c.Param("module"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, m.Meta())
	}
}

func listParameters(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := n.ListParameters(c.Param("module"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, &ParameterList{Parameters: params})
	}
}

func readParameter(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := n.Read(c.Request.Context(), c.Param("module"), c.Param("param"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

func writeParameter(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var req WriteRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		v, err := n.Write(c.Request.Context(), c.Param("module"), c.Param("param"), req.Value)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// patchParameter applies a JSON patch or merge patch to the current value
// and writes the result.
func patchParameter(n *Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
		if !patchTypes.Has(contentType) {
			re := response.ErrUnsupportedPatchType(contentType)
			c.JSON(re.Status(), response.NewMultiError(re))
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		module, param := c.Param("module"), c.Param("param")
		old, err := n.Read(c.Request.Context(), module, param)
		if err != nil {
			abortWithError(c, err)
			return
		}
		currentJS, err := json.Marshal(old.Value)
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		patchedJS, err := applyJSPatch(types.PatchType(contentType), patchBytes, currentJS)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}
		var value interface{}
		if err := json.Unmarshal(patchedJS, &value); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		v, err := n.Write(c.Request.Context(), module, param, value)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// abortWithError answers with the status code matching the error class.
func abortWithError(c *gin.Context, err error) {
	var re interface {
		error
		Status() int
	}
	switch {
	case errors.Is(err, constant.ErrModuleNotFound), errors.Is(err, constant.ErrParameterNotFound),
		errors.Is(err, constant.ErrNotInitialized):
		re = response.ErrResourceNotFound(err.Error())
	case errors.Is(err, constant.ErrValidation):
		re = response.ErrValidation(err)
	case errors.Is(err, constant.ErrReadOnly):
		re = response.ErrReadOnly(c.Param("param"), err)
	case errors.Is(err, constant.ErrTimeout):
		re = response.ErrDeviceTimeout(err)
	case errors.Is(err, constant.ErrConnection), errors.Is(err, constant.ErrLinkClosed):
		re = response.ErrDeviceConnection(err)
	case errors.Is(err, constant.ErrProtocol), errors.Is(err, constant.ErrUnmappedStatus):
		re = response.ErrDeviceProtocol(err)
	default:
		klog.ErrorS(err, "Request failed", "path", c.Request.URL.Path)
		re = response.ErrInternal(err)
	}
	c.JSON(re.Status(), response.NewMultiError(re))
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) (patchedJS []byte, err error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err = jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, err
	default:
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
